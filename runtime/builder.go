package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/crew"
	"github.com/BaSui01/crewflow/flow"
	"github.com/BaSui01/crewflow/tool"
	"github.com/BaSui01/crewflow/types"
)

// CompleterFactory produces the reasoning collaborator for one agent's
// model configuration. The engine never talks to a model directly; every
// agent goes through a completer built here.
type CompleterFactory func(cfg crew.LLMConfig) (crew.Completer, error)

// Graph is the fully built runtime object graph for one document.
type Graph struct {
	Doc *config.Document

	Agents map[string]*crew.Agent
	Tasks  map[string]*crew.Task
	Crews  map[string]*crew.Crew

	// CrewList preserves declaration order for crew documents, which run
	// their crews in sequence.
	CrewList []*crew.Crew

	// Flow is non-nil for flow documents.
	Flow *flow.Graph
}

// Builder compiles documents into runtime graphs.
type Builder struct {
	resolver *tool.Resolver
	factory  CompleterFactory
	logger   *zap.Logger
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithBuilderLogger sets the builder logger.
func WithBuilderLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder creates a Builder. The resolver supplies tool instances and
// the factory supplies one completer per agent.
func NewBuilder(resolver *tool.Resolver, factory CompleterFactory, opts ...BuilderOption) *Builder {
	b := &Builder{
		resolver: resolver,
		factory:  factory,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("component", "builder"))
	return b
}

// Build compiles a validated document bottom-up: agents first, then tasks
// in two passes so forward context references resolve, then crews, then
// the flow graph.
//
// Tool resolution and completer failures surface as BUILD errors with the
// underlying cause attached. Dangling references indicate a document that
// skipped validation and fail as INTERNAL.
func (b *Builder) Build(ctx context.Context, doc *config.Document) (*Graph, error) {
	// The discovery cache is scoped to one build; a provider whose
	// catalogue changed between builds must be re-queried.
	b.resolver.ResetCache()

	g := &Graph{
		Doc:    doc,
		Agents: make(map[string]*crew.Agent, len(doc.Agents)),
		Tasks:  make(map[string]*crew.Task, len(doc.Tasks)),
		Crews:  make(map[string]*crew.Crew, len(doc.Crews)),
	}

	if err := b.buildAgents(ctx, doc, g); err != nil {
		return nil, err
	}
	if err := b.buildTasks(ctx, doc, g); err != nil {
		return nil, err
	}
	if err := b.buildCrews(doc, g); err != nil {
		return nil, err
	}
	if err := b.buildFlow(doc, g); err != nil {
		return nil, err
	}

	b.logger.Info("document built",
		zap.Int("agents", len(g.Agents)),
		zap.Int("tasks", len(g.Tasks)),
		zap.Int("crews", len(g.Crews)),
		zap.Bool("flow", g.Flow != nil),
	)
	return g, nil
}

func (b *Builder) buildAgents(ctx context.Context, doc *config.Document, g *Graph) error {
	for i := range doc.Agents {
		spec := &doc.Agents[i]

		tools, err := b.resolveTools(ctx, spec.Tools)
		if err != nil {
			return types.Errorf(types.ErrBuild, "agent %q", spec.Role).
				WithComponent(spec.Role).WithCause(err)
		}

		llm := crew.LLMConfig{
			Provider:    spec.LLM.Provider,
			Model:       spec.LLM.Model,
			Temperature: spec.LLM.Temperature,
		}
		completer, err := b.makeCompleter(llm)
		if err != nil {
			return types.Errorf(types.ErrBuild, "agent %q: completer", spec.Role).
				WithComponent(spec.Role).WithCause(err)
		}

		g.Agents[spec.Role] = crew.NewAgent(crew.AgentConfig{
			Role:            spec.Role,
			Goal:            spec.Goal,
			Backstory:       spec.Backstory,
			AllowDelegation: spec.AllowDelegation,
			Verbose:         spec.Verbose,
			LLM:             llm,
		}, tools, completer, b.logger)
	}
	return nil
}

// buildTasks creates every task shell first and wires context pointers in a
// second pass, so a task may reference a sibling declared after it.
func (b *Builder) buildTasks(ctx context.Context, doc *config.Document, g *Graph) error {
	for i := range doc.Tasks {
		spec := &doc.Tasks[i]

		agent, ok := g.Agents[spec.Agent]
		if !ok {
			return types.Errorf(types.ErrInternal, "task %q references unbuilt agent %q", spec.Name, spec.Agent).
				WithComponent(spec.Name)
		}

		tools, err := b.resolveTools(ctx, spec.Tools)
		if err != nil {
			return types.Errorf(types.ErrBuild, "task %q", spec.Name).
				WithComponent(spec.Name).WithCause(err)
		}

		g.Tasks[spec.Name] = &crew.Task{
			Name:           spec.Name,
			Description:    spec.Description,
			ExpectedOutput: spec.ExpectedOutput,
			OutputFile:     spec.OutputFile,
			Agent:          agent,
			Tools:          tools,
		}
	}

	for i := range doc.Tasks {
		spec := &doc.Tasks[i]
		task := g.Tasks[spec.Name]
		for _, ctxName := range spec.Context {
			ctxTask, ok := g.Tasks[ctxName]
			if !ok {
				return types.Errorf(types.ErrInternal, "task %q references unbuilt context task %q", spec.Name, ctxName).
					WithComponent(spec.Name)
			}
			task.Context = append(task.Context, ctxTask)
		}
	}
	return nil
}

func (b *Builder) buildCrews(doc *config.Document, g *Graph) error {
	for i := range doc.Crews {
		spec := &doc.Crews[i]

		var manager *crew.Agent
		if spec.Manager != "" {
			m, ok := g.Agents[spec.Manager]
			if !ok {
				return types.Errorf(types.ErrInternal, "crew %q references unbuilt manager %q", spec.Name, spec.Manager).
					WithComponent(spec.Name)
			}
			manager = m
		}

		c := crew.NewCrew(crew.CrewConfig{
			Name:    spec.Name,
			Process: crew.ProcessType(spec.Process),
			Manager: manager,
			Memory:  spec.Memory,
			Verbose: spec.Verbose,
		}, b.logger)

		for _, role := range spec.Agents {
			a, ok := g.Agents[role]
			if !ok {
				return types.Errorf(types.ErrInternal, "crew %q references unbuilt agent %q", spec.Name, role).
					WithComponent(spec.Name)
			}
			c.AddAgent(a)
		}
		for _, name := range spec.Tasks {
			t, ok := g.Tasks[name]
			if !ok {
				return types.Errorf(types.ErrInternal, "crew %q references unbuilt task %q", spec.Name, name).
					WithComponent(spec.Name)
			}
			c.AddTask(t)
		}

		g.Crews[spec.Name] = c
		g.CrewList = append(g.CrewList, c)
	}
	return nil
}

func (b *Builder) buildFlow(doc *config.Document, g *Graph) error {
	if !doc.IsFlow() {
		return nil
	}

	name, className := "", ""
	if doc.Flow != nil {
		name = doc.Flow.Name
		className = doc.Flow.ClassName
	}
	fg := flow.NewGraph(name, className)

	for i := range doc.FlowMethods {
		spec := &doc.FlowMethods[i]

		m := &flow.Method{
			Name:     spec.Name,
			Type:     spec.Type,
			ListenTo: append([]string(nil), spec.ListenTo...),
			Action:   spec.Action,
			Output:   spec.Output,
		}
		if spec.Crew != "" {
			c, ok := g.Crews[spec.Crew]
			if !ok {
				return types.Errorf(types.ErrInternal, "flow method %q references unbuilt crew %q", spec.Name, spec.Crew).
					WithComponent(spec.Name)
			}
			m.Crew = c
		}

		if err := fg.AddMethod(m); err != nil {
			return types.Errorf(types.ErrInternal, "flow graph").WithComponent(spec.Name).WithCause(err)
		}
	}

	g.Flow = fg
	return nil
}

// resolveTools flattens every reference into its tool instances, in
// reference order.
func (b *Builder) resolveTools(ctx context.Context, refs []config.ToolReference) ([]tool.Tool, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	var tools []tool.Tool
	for _, ref := range refs {
		resolved, err := b.resolver.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		tools = append(tools, resolved...)
	}
	return tools, nil
}

func (b *Builder) makeCompleter(cfg crew.LLMConfig) (crew.Completer, error) {
	if b.factory == nil {
		return nil, types.NewError(types.ErrBuild, "no completer factory configured")
	}
	return b.factory(cfg)
}
