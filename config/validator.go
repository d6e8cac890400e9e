package config

import (
	"fmt"
	"strings"
)

// Validator checks structural and referential integrity of a Document.
// It collects every problem found rather than stopping at the first.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the document and returns all problems found.
func (v *Validator) Validate(doc *Document) []error {
	var errs []error

	errs = append(errs, v.validateStructure(doc)...)
	errs = append(errs, v.validateUniqueness(doc)...)
	errs = append(errs, v.validateReferences(doc)...)
	if doc.IsFlow() {
		errs = append(errs, v.validateFlow(doc)...)
	}

	return errs
}

// validateStructure checks the required top-level keys for the declared
// workflow shape.
func (v *Validator) validateStructure(doc *Document) []error {
	var errs []error

	if doc.IsFlow() {
		if doc.Flow == nil {
			errs = append(errs, fmt.Errorf("flow_methods present but flow metadata is missing"))
		}
		if len(doc.FlowMethods) == 0 {
			errs = append(errs, fmt.Errorf("flow requires at least one flow method"))
		}
	} else {
		if len(doc.Agents) == 0 {
			errs = append(errs, fmt.Errorf("crew workflow requires agents"))
		}
		if len(doc.Tasks) == 0 {
			errs = append(errs, fmt.Errorf("crew workflow requires tasks"))
		}
		if len(doc.Crews) == 0 {
			errs = append(errs, fmt.Errorf("crew workflow requires crews"))
		}
	}

	for _, a := range doc.Agents {
		if a.Role == "" {
			errs = append(errs, fmt.Errorf("agent role is required"))
		}
	}
	for _, t := range doc.Tasks {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("task name is required"))
		}
		if t.Agent == "" {
			errs = append(errs, fmt.Errorf("task %s: agent is required", t.Name))
		}
	}
	for _, c := range doc.Crews {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("crew name is required"))
		}
		if c.Process != ProcessSequential && c.Process != ProcessHierarchical {
			errs = append(errs, fmt.Errorf("crew %s: invalid process %q", c.Name, c.Process))
		}
	}

	for _, a := range doc.Agents {
		errs = append(errs, validateToolRefs("agent "+a.Role, a.Tools)...)
	}
	for _, t := range doc.Tasks {
		errs = append(errs, validateToolRefs("task "+t.Name, t.Tools)...)
	}

	return errs
}

// validateToolRefs checks that each tool reference has a usable shape.
func validateToolRefs(where string, refs []ToolReference) []error {
	var errs []error
	for _, r := range refs {
		switch {
		case r.Name != "" && r.Provider != "":
			errs = append(errs, fmt.Errorf("%s: tool reference mixes builtin name %q with provider %q", where, r.Name, r.Provider))
		case r.Name == "" && r.Provider == "":
			errs = append(errs, fmt.Errorf("%s: tool reference has neither builtin name nor provider", where))
		case r.Provider != "" && len(r.ToolNames) == 0:
			errs = append(errs, fmt.Errorf("%s: provider-scoped tool reference %s requires tool_names", where, r.Provider))
		}
	}
	return errs
}

// validateUniqueness checks name uniqueness within each collection.
func (v *Validator) validateUniqueness(doc *Document) []error {
	var errs []error

	seen := make(map[string]bool)
	for _, a := range doc.Agents {
		if a.Role != "" && seen[a.Role] {
			errs = append(errs, fmt.Errorf("duplicate agent role: %s", a.Role))
		}
		seen[a.Role] = true
	}

	seen = make(map[string]bool)
	for _, t := range doc.Tasks {
		if t.Name != "" && seen[t.Name] {
			errs = append(errs, fmt.Errorf("duplicate task name: %s", t.Name))
		}
		seen[t.Name] = true
	}

	seen = make(map[string]bool)
	for _, c := range doc.Crews {
		if c.Name != "" && seen[c.Name] {
			errs = append(errs, fmt.Errorf("duplicate crew name: %s", c.Name))
		}
		seen[c.Name] = true
	}

	seen = make(map[string]bool)
	for _, m := range doc.FlowMethods {
		if m.Name != "" && seen[m.Name] {
			errs = append(errs, fmt.Errorf("duplicate flow method name: %s", m.Name))
		}
		seen[m.Name] = true
	}

	return errs
}

// validateReferences checks that every cross-reference resolves within the
// document. Declaration order does not matter.
func (v *Validator) validateReferences(doc *Document) []error {
	var errs []error

	for _, t := range doc.Tasks {
		if t.Agent != "" {
			if _, ok := doc.AgentByRole(t.Agent); !ok {
				errs = append(errs, fmt.Errorf("task %s: agent %q not found", t.Name, t.Agent))
			}
		}
		for _, ctxName := range t.Context {
			if ctxName == t.Name {
				errs = append(errs, fmt.Errorf("task %s: context references itself", t.Name))
				continue
			}
			if _, ok := doc.TaskByName(ctxName); !ok {
				errs = append(errs, fmt.Errorf("task %s: context task %q not found", t.Name, ctxName))
			}
		}
	}

	for _, c := range doc.Crews {
		if c.Manager != "" {
			if _, ok := doc.AgentByRole(c.Manager); !ok {
				errs = append(errs, fmt.Errorf("crew %s: manager %q not found", c.Name, c.Manager))
			}
		}
		for _, role := range c.Agents {
			if _, ok := doc.AgentByRole(role); !ok {
				errs = append(errs, fmt.Errorf("crew %s: agent %q not found", c.Name, role))
			}
		}
		for _, taskName := range c.Tasks {
			if _, ok := doc.TaskByName(taskName); !ok {
				errs = append(errs, fmt.Errorf("crew %s: task %q not found", c.Name, taskName))
			}
		}
	}

	if doc.Flow != nil {
		for _, crewName := range doc.Flow.Crews {
			if _, ok := doc.CrewByName(crewName); !ok {
				errs = append(errs, fmt.Errorf("flow %s: crew %q not found", doc.Flow.Name, crewName))
			}
		}
	}

	for _, m := range doc.FlowMethods {
		for _, pred := range m.ListenTo {
			if _, ok := doc.MethodByName(pred); !ok {
				errs = append(errs, fmt.Errorf("flow method %s: listen_to %q not found", m.Name, pred))
			}
		}
		if m.Action == ActionRunCrew {
			// A crew-less method is a pass-through marker and must declare a
			// static output instead.
			if m.Crew == "" {
				if m.Output == "" {
					errs = append(errs, fmt.Errorf("flow method %s: run_crew action requires a crew or a static output", m.Name))
				}
			} else if _, ok := doc.CrewByName(m.Crew); !ok {
				errs = append(errs, fmt.Errorf("flow method %s: crew %q not found", m.Name, m.Crew))
			}
		}
	}

	return errs
}

// validateFlow checks the flow-specific structural constraints: method
// types, at least one start, and an acyclic listen graph.
func (v *Validator) validateFlow(doc *Document) []error {
	var errs []error

	starts := 0
	for _, m := range doc.FlowMethods {
		switch m.Type {
		case MethodStart:
			starts++
			if len(m.ListenTo) > 0 {
				errs = append(errs, fmt.Errorf("flow method %s: start method must not declare listen_to", m.Name))
			}
		case MethodListen:
			if len(m.ListenTo) == 0 {
				errs = append(errs, fmt.Errorf("flow method %s: listen method requires listen_to", m.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("flow method %s: invalid type %q", m.Name, m.Type))
		}
		if m.Action != ActionRunCrew {
			errs = append(errs, fmt.Errorf("flow method %s: unsupported action %q", m.Name, m.Action))
		}
	}
	if starts == 0 {
		errs = append(errs, fmt.Errorf("flow requires at least one start method"))
	}

	if cycle := findListenCycle(doc.FlowMethods); cycle != nil {
		errs = append(errs, fmt.Errorf("flow listen graph has a cycle: %s", strings.Join(cycle, " -> ")))
	}

	return errs
}

// findListenCycle runs a depth-first search over the listen graph and
// returns the first cycle path found, or nil if the graph is acyclic.
// A method may not, directly or transitively, listen to itself.
func findListenCycle(methods []FlowMethodSpec) []string {
	listenTo := make(map[string][]string, len(methods))
	for _, m := range methods {
		listenTo[m.Name] = m.ListenTo
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(methods))
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		path = append(path, name)
		for _, pred := range listenTo[name] {
			if _, known := listenTo[pred]; !known {
				continue // dangling reference, reported elsewhere
			}
			switch color[pred] {
			case gray:
				// Reconstruct the cycle from the first occurrence of pred.
				start := 0
				for i, n := range path {
					if n == pred {
						start = i
						break
					}
				}
				cycle = append(append(cycle, path[start:]...), pred)
				return true
			case white:
				if visit(pred) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return false
	}

	for _, m := range methods {
		if color[m.Name] == white {
			if visit(m.Name) {
				return cycle
			}
		}
	}
	return nil
}
