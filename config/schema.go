package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the root of a parsed workflow configuration.
// It is created once per parse and is read-only thereafter.
type Document struct {
	// Agents defines the agent roles available in this document.
	Agents []AgentSpec `yaml:"agents,omitempty" json:"agents,omitempty"`
	// Tasks defines the units of work assigned to agents.
	Tasks []TaskSpec `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	// Crews groups agents and tasks into runnable crews.
	Crews []CrewSpec `yaml:"crews,omitempty" json:"crews,omitempty"`
	// Flow holds flow metadata. A document with a flow is a Flow document.
	Flow *FlowSpec `yaml:"flow,omitempty" json:"flow,omitempty"`
	// FlowMethods are the named steps of the flow dependency graph.
	FlowMethods []FlowMethodSpec `yaml:"flow_methods,omitempty" json:"flow_methods,omitempty"`
}

// IsFlow reports whether this document declares a Flow workflow.
func (d *Document) IsFlow() bool {
	return d.Flow != nil || len(d.FlowMethods) > 0
}

// AgentByRole looks up an agent spec by role name.
func (d *Document) AgentByRole(role string) (*AgentSpec, bool) {
	for i := range d.Agents {
		if d.Agents[i].Role == role {
			return &d.Agents[i], true
		}
	}
	return nil, false
}

// TaskByName looks up a task spec by name.
func (d *Document) TaskByName(name string) (*TaskSpec, bool) {
	for i := range d.Tasks {
		if d.Tasks[i].Name == name {
			return &d.Tasks[i], true
		}
	}
	return nil, false
}

// CrewByName looks up a crew spec by name.
func (d *Document) CrewByName(name string) (*CrewSpec, bool) {
	for i := range d.Crews {
		if d.Crews[i].Name == name {
			return &d.Crews[i], true
		}
	}
	return nil, false
}

// MethodByName looks up a flow method spec by name.
func (d *Document) MethodByName(name string) (*FlowMethodSpec, bool) {
	for i := range d.FlowMethods {
		if d.FlowMethods[i].Name == name {
			return &d.FlowMethods[i], true
		}
	}
	return nil, false
}

// LLMSpec selects the reasoning model behind an agent.
type LLMSpec struct {
	Provider    string  `yaml:"provider,omitempty" json:"provider,omitempty"`
	Model       string  `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// AgentSpec declares one agent role.
type AgentSpec struct {
	// Role is the agent's unique name within the document.
	Role      string `yaml:"role" json:"role"`
	Goal      string `yaml:"goal" json:"goal"`
	Backstory string `yaml:"backstory,omitempty" json:"backstory,omitempty"`
	// Tools lists the tool references attached to this agent.
	Tools []ToolReference `yaml:"tools,omitempty" json:"tools,omitempty"`
	// LLM selects the model configuration for this agent.
	LLM             LLMSpec `yaml:"llm,omitempty" json:"llm,omitempty"`
	AllowDelegation bool    `yaml:"allow_delegation,omitempty" json:"allow_delegation,omitempty"`
	Verbose         bool    `yaml:"verbose,omitempty" json:"verbose,omitempty"`
}

// TaskSpec declares one unit of work.
type TaskSpec struct {
	// Name is the task's unique name within the document.
	Name string `yaml:"name" json:"name"`
	// Description may embed the {input} placeholder, substituted with the
	// caller-supplied input at run time.
	Description string `yaml:"description" json:"description"`
	// Agent names the role that performs this task.
	Agent          string          `yaml:"agent" json:"agent"`
	ExpectedOutput string          `yaml:"expected_output,omitempty" json:"expected_output,omitempty"`
	Tools          []ToolReference `yaml:"tools,omitempty" json:"tools,omitempty"`
	// Context names sibling tasks whose outputs must be available before
	// this task runs. Forward references are legal.
	Context []string `yaml:"context,omitempty" json:"context,omitempty"`
	// OutputFile, when set, receives the task result after completion.
	OutputFile string `yaml:"output_file,omitempty" json:"output_file,omitempty"`
}

// ProcessType defines how a crew works through its task list.
type ProcessType string

const (
	// ProcessSequential runs tasks in declaration order.
	ProcessSequential ProcessType = "sequential"
	// ProcessHierarchical routes tasks through a manager agent.
	ProcessHierarchical ProcessType = "hierarchical"
)

// CrewSpec groups agents and tasks into one runnable crew.
type CrewSpec struct {
	// Name is the crew's unique name within the document.
	Name    string      `yaml:"name" json:"name"`
	Process ProcessType `yaml:"process,omitempty" json:"process,omitempty"`
	// Manager names the managing agent for hierarchical crews.
	Manager string   `yaml:"manager,omitempty" json:"manager,omitempty"`
	Agents  []string `yaml:"agents" json:"agents"`
	Tasks   []string `yaml:"tasks" json:"tasks"`
	Memory  bool     `yaml:"memory,omitempty" json:"memory,omitempty"`
	Verbose bool     `yaml:"verbose,omitempty" json:"verbose,omitempty"`
}

// FlowSpec holds flow-level metadata.
type FlowSpec struct {
	Name      string `yaml:"name" json:"name"`
	ClassName string `yaml:"class_name,omitempty" json:"class_name,omitempty"`
	// Crews lists the crew names this flow may invoke.
	Crews []string `yaml:"crews,omitempty" json:"crews,omitempty"`
}

// MethodType distinguishes flow entry points from triggered steps.
type MethodType string

const (
	// MethodStart marks an entry point with no predecessors.
	MethodStart MethodType = "start"
	// MethodListen marks a step triggered when every method in its
	// listen_to set has completed.
	MethodListen MethodType = "listen"
)

// ActionKind is the tagged variant selector for a flow method's action.
// New kinds extend this set without touching the graph executor.
type ActionKind string

const (
	// ActionRunCrew runs the method's target crew. This is the default
	// and currently the only supported action kind.
	ActionRunCrew ActionKind = "run_crew"
)

// FlowMethodSpec declares one named node in the flow dependency graph.
type FlowMethodSpec struct {
	// Name is the method's unique name within the flow.
	Name string     `yaml:"name" json:"name"`
	Type MethodType `yaml:"type" json:"type"`
	// ListenTo names the predecessor methods that must all complete
	// before this method becomes eligible.
	ListenTo []string   `yaml:"listen_to,omitempty" json:"listen_to,omitempty"`
	Action   ActionKind `yaml:"action,omitempty" json:"action,omitempty"`
	// Crew names the crew this method runs.
	Crew string `yaml:"crew,omitempty" json:"crew,omitempty"`
	// Output, when set, is recorded as the method result instead of the
	// raw crew output.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// ToolReference points at either a built-in tool (bare name) or a
// provider-scoped tool set. On the wire the two shapes are:
//
//	- "web_search"
//	- {mcp: [docs-server], tool_names: [search, fetch], parameters: {depth: 2}}
//
// where the mapping key that is neither tool_names nor parameters is the
// provider identifier and its value lists the provider's servers.
type ToolReference struct {
	// Name is the built-in tool name. Empty for provider-scoped references.
	Name string `json:"name,omitempty"`
	// Provider identifies the tool provider for scoped references.
	Provider string `json:"provider,omitempty"`
	// Servers lists the provider servers to query.
	Servers []string `json:"servers,omitempty"`
	// ToolNames filters which discovered tools to attach.
	ToolNames []string `json:"tool_names,omitempty"`
	// Parameters carries provider-specific resolution parameters.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// IsBuiltin reports whether the reference names a built-in tool.
func (r *ToolReference) IsBuiltin() bool {
	return r.Name != ""
}

// String renders the reference for error messages and cache keys.
func (r ToolReference) String() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("%s%v:%v", r.Provider, r.Servers, r.ToolNames)
}

// UnmarshalYAML accepts both the bare-string and the provider-scoped
// mapping shape.
func (r *ToolReference) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&r.Name)
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			key := value.Content[i].Value
			val := value.Content[i+1]
			switch key {
			case "tool_names":
				if err := val.Decode(&r.ToolNames); err != nil {
					return fmt.Errorf("tool reference tool_names: %w", err)
				}
			case "parameters":
				if err := val.Decode(&r.Parameters); err != nil {
					return fmt.Errorf("tool reference parameters: %w", err)
				}
			default:
				if r.Provider != "" {
					return fmt.Errorf("tool reference has multiple provider keys: %s and %s", r.Provider, key)
				}
				r.Provider = key
				if err := val.Decode(&r.Servers); err != nil {
					return fmt.Errorf("tool reference servers for provider %s: %w", key, err)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("tool reference must be a string or a mapping, got %v", value.Kind)
	}
}

// UnmarshalJSON accepts both the bare-string and the provider-scoped
// object shape.
func (r *ToolReference) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.Name = name
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("tool reference must be a string or an object: %w", err)
	}
	for key, raw := range obj {
		switch key {
		case "tool_names":
			if err := json.Unmarshal(raw, &r.ToolNames); err != nil {
				return fmt.Errorf("tool reference tool_names: %w", err)
			}
		case "parameters":
			if err := json.Unmarshal(raw, &r.Parameters); err != nil {
				return fmt.Errorf("tool reference parameters: %w", err)
			}
		default:
			if r.Provider != "" {
				return fmt.Errorf("tool reference has multiple provider keys: %s and %s", r.Provider, key)
			}
			r.Provider = key
			if err := json.Unmarshal(raw, &r.Servers); err != nil {
				return fmt.Errorf("tool reference servers for provider %s: %w", key, err)
			}
		}
	}
	return nil
}
