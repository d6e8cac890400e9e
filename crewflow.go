// Package crewflow is a declarative multi-agent workflow engine. Workflow
// definitions arrive as YAML or JSON documents describing agents, tasks,
// crews, and optionally a flow dependency graph; the engine compiles a
// document into live objects and executes it against a caller-supplied
// reasoning backend.
package crewflow

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/execution"
	"github.com/BaSui01/crewflow/flow"
	"github.com/BaSui01/crewflow/runtime"
	"github.com/BaSui01/crewflow/tool"
)

// Engine is the one-stop entry point: it parses, validates, builds, and
// executes workflow documents. An Engine is safe for concurrent use.
type Engine struct {
	parser   *config.Parser
	builder  *runtime.Builder
	executor *flow.Executor
	logger   *zap.Logger
}

// Option customizes an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	logger      *zap.Logger
	lookup      config.EnvLookup
	maxParallel int
}

// WithLogger sets the engine logger, shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(c *engineConfig) { c.logger = logger }
}

// WithEnvLookup overrides the environment namespace used for ${NAME}
// placeholder expansion.
func WithEnvLookup(lookup config.EnvLookup) Option {
	return func(c *engineConfig) { c.lookup = lookup }
}

// WithMaxParallel bounds how many flow methods run concurrently.
func WithMaxParallel(n int) Option {
	return func(c *engineConfig) { c.maxParallel = n }
}

// New creates an Engine. The resolver supplies tools; the factory builds
// the reasoning collaborator behind each agent.
func New(resolver *tool.Resolver, factory runtime.CompleterFactory, opts ...Option) *Engine {
	cfg := &engineConfig{
		logger:      zap.NewNop(),
		maxParallel: 4,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	parserOpts := []config.ParserOption{config.WithLogger(cfg.logger)}
	if cfg.lookup != nil {
		parserOpts = append(parserOpts, config.WithEnvLookup(cfg.lookup))
	}

	return &Engine{
		parser:  config.NewParser(parserOpts...),
		builder: runtime.NewBuilder(resolver, factory, runtime.WithBuilderLogger(cfg.logger)),
		executor: flow.NewExecutor(
			flow.WithExecutorLogger(cfg.logger),
			flow.WithMaxParallel(cfg.maxParallel),
		),
		logger: cfg.logger.With(zap.String("component", "engine")),
	}
}

// Validate parses the document and reports every validation problem.
// A nil return means the document would build.
func (e *Engine) Validate(source []byte) error {
	_, err := e.parser.Parse(source)
	return err
}

// ValidateFile validates a document on disk.
func (e *Engine) ValidateFile(path string) error {
	_, err := e.parser.ParseFile(path)
	return err
}

// Run parses, builds, and executes one workflow document with the given
// input, returning the workflow's final output.
//
// A flow document runs its dependency graph. A crew document runs its
// crews in declaration order and concatenates their outputs.
func (e *Engine) Run(ctx context.Context, source []byte, input string) (string, error) {
	doc, err := e.parser.Parse(source)
	if err != nil {
		return "", err
	}
	return e.runDocument(ctx, doc, input)
}

// RunFile runs a workflow document from disk.
func (e *Engine) RunFile(ctx context.Context, path, input string) (string, error) {
	doc, err := e.parser.ParseFile(path)
	if err != nil {
		return "", err
	}
	return e.runDocument(ctx, doc, input)
}

func (e *Engine) runDocument(ctx context.Context, doc *config.Document, input string) (string, error) {
	g, err := e.builder.Build(ctx, doc)
	if err != nil {
		return "", err
	}

	if g.Flow != nil {
		result, err := e.executor.Execute(ctx, g.Flow, input)
		if err != nil {
			return "", err
		}
		return result.Output, nil
	}

	var outputs []string
	for _, c := range g.CrewList {
		result, err := c.Run(ctx, input)
		if err != nil {
			return "", err
		}
		outputs = append(outputs, result.Raw)
	}
	return strings.Join(outputs, "\n\n"), nil
}

// SourceLoader fetches a workflow document source by its workflow ID, for
// example from the workflow store.
type SourceLoader func(ctx context.Context, workflowID string) ([]byte, error)

// Pipeline adapts the engine into an execution.Pipeline so workflows can
// run asynchronously under an execution.Manager.
func (e *Engine) Pipeline(load SourceLoader) execution.Pipeline {
	return func(ctx context.Context, workflowID, input string) (string, error) {
		source, err := load(ctx, workflowID)
		if err != nil {
			return "", err
		}
		return e.Run(ctx, source, input)
	}
}
