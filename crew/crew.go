package crew

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

// ProcessType defines how a crew works through its task list.
type ProcessType string

const (
	// ProcessSequential runs tasks in declaration order.
	ProcessSequential ProcessType = "sequential"
	// ProcessHierarchical routes every task through a manager agent, which
	// assigns it to the task's agent or performs it itself, and retries a
	// failed delegation itself before failing the crew.
	ProcessHierarchical ProcessType = "hierarchical"
)

// TaskOutput is the recorded result of one task.
type TaskOutput struct {
	Task  string `json:"task"`
	Agent string `json:"agent"`
	Raw   string `json:"raw"`
}

// Result holds the outcome of one crew run.
type Result struct {
	Crew string `json:"crew"`
	// Raw is the output of the final task.
	Raw         string        `json:"raw"`
	TaskOutputs []TaskOutput  `json:"task_outputs"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
}

// CrewConfig configures a Crew.
type CrewConfig struct {
	Name    string
	Process ProcessType
	// Manager is the managing agent for hierarchical crews. Optional; the
	// first delegation-enabled agent is used when unset.
	Manager *Agent
	Memory  bool
	Verbose bool
}

// Crew is a fixed set of agents and tasks run together once.
// Read-only after build; per-run state stays on the stack of Run, so one
// Crew may serve concurrent runs with different inputs.
type Crew struct {
	Name    string
	Process ProcessType
	Manager *Agent
	Agents  []*Agent
	Tasks   []*Task
	Memory  bool
	Verbose bool

	logger *zap.Logger
	tracer trace.Tracer
}

// NewCrew creates an empty Crew.
func NewCrew(cfg CrewConfig, logger *zap.Logger) *Crew {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crew{
		Name:    cfg.Name,
		Process: cfg.Process,
		Manager: cfg.Manager,
		Memory:  cfg.Memory,
		Verbose: cfg.Verbose,
		logger:  logger.With(zap.String("component", "crew"), zap.String("crew", cfg.Name)),
		tracer:  otel.Tracer("crewflow/crew"),
	}
}

// AddAgent adds an agent to the crew.
func (c *Crew) AddAgent(a *Agent) {
	c.Agents = append(c.Agents, a)
}

// AddTask appends a task to the crew's task list.
func (c *Crew) AddTask(t *Task) {
	c.Tasks = append(c.Tasks, t)
}

// Run executes the crew's task list once with the given caller input.
func (c *Crew) Run(ctx context.Context, input string) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "crew.run",
		trace.WithAttributes(
			attribute.String("crew.name", c.Name),
			attribute.String("crew.process", string(c.Process)),
			attribute.Int("crew.tasks", len(c.Tasks)),
		))
	defer span.End()

	c.logger.Info("starting crew run", zap.Int("tasks", len(c.Tasks)))
	start := time.Now()

	result := &Result{
		Crew:        c.Name,
		TaskOutputs: make([]TaskOutput, 0, len(c.Tasks)),
		StartTime:   start,
	}

	var err error
	switch c.Process {
	case ProcessSequential:
		err = c.runSequential(ctx, input, result)
	case ProcessHierarchical:
		err = c.runHierarchical(ctx, input, result)
	default:
		err = types.Errorf(types.ErrExecution, "crew %q has unknown process %q", c.Name, c.Process).
			WithComponent(c.Name)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)
	if err != nil {
		c.logger.Error("crew run failed", zap.Duration("duration", result.Duration), zap.Error(err))
		return result, err
	}

	c.logger.Info("crew run completed", zap.Duration("duration", result.Duration))
	return result, nil
}

func (c *Crew) runSequential(ctx context.Context, input string, result *Result) error {
	outputs := make(map[string]string, len(c.Tasks))
	for _, task := range c.Tasks {
		if err := c.runTask(ctx, task, task.Agent, input, outputs, result); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crew) runHierarchical(ctx context.Context, input string, result *Result) error {
	manager := c.Manager
	if manager == nil {
		for _, a := range c.Agents {
			if a.AllowDelegation {
				manager = a
				break
			}
		}
	}
	if manager == nil {
		return types.Errorf(types.ErrExecution, "hierarchical crew %q has no manager and no delegation-enabled agent", c.Name).
			WithComponent(c.Name)
	}

	outputs := make(map[string]string, len(c.Tasks))
	for _, task := range c.Tasks {
		assignee := task.Agent
		if assignee == nil {
			assignee = manager
		}
		if assignee != manager {
			c.logger.Debug("manager delegating task",
				zap.String("manager", manager.Role),
				zap.String("task", task.Name),
				zap.String("assignee", assignee.Role),
			)
		}
		err := c.runTask(ctx, task, assignee, input, outputs, result)
		if err != nil && assignee != manager {
			// A failed delegation falls back to the manager before the crew
			// gives up on the task.
			c.logger.Warn("delegated task failed, manager taking over",
				zap.String("task", task.Name),
				zap.String("assignee", assignee.Role),
				zap.Error(err),
			)
			err = c.runTask(ctx, task, manager, input, outputs, result)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// runTask gathers the task's context, executes it through the given agent,
// and records the output.
func (c *Crew) runTask(ctx context.Context, task *Task, agent *Agent, input string, outputs map[string]string, result *Result) error {
	if agent == nil {
		return types.Errorf(types.ErrExecution, "task %q has no agent", task.Name).WithComponent(task.Name)
	}

	contextText, err := c.contextFor(task, outputs)
	if err != nil {
		return err
	}

	output, err := agent.ExecuteTask(ctx, task, input, contextText)
	if err != nil {
		return err
	}

	if task.OutputFile != "" {
		if werr := writeOutputFile(task.OutputFile, output); werr != nil {
			return types.Errorf(types.ErrExecution, "write output file %q", task.OutputFile).
				WithComponent(task.Name).WithCause(werr)
		}
	}

	outputs[task.Name] = output
	result.TaskOutputs = append(result.TaskOutputs, TaskOutput{
		Task:  task.Name,
		Agent: agent.Role,
		Raw:   output,
	})
	result.Raw = output
	return nil
}

// contextFor assembles the context text for a task from the outputs of its
// declared context tasks. With Memory enabled the outputs of every task run
// so far are included as well.
//
// A declared context task that has not produced output yet (it runs later
// in this crew, or in another crew entirely) fails loudly rather than
// running the task with silently missing context.
func (c *Crew) contextFor(task *Task, outputs map[string]string) (string, error) {
	var sections []string
	seen := make(map[string]bool, len(task.Context))

	for _, ctxTask := range task.Context {
		out, ok := outputs[ctxTask.Name]
		if !ok {
			return "", types.Errorf(types.ErrExecution,
				"context task %q has not produced output before task %q", ctxTask.Name, task.Name).
				WithComponent(task.Name)
		}
		sections = append(sections, fmt.Sprintf("## %s\n%s", ctxTask.Name, out))
		seen[ctxTask.Name] = true
	}

	if c.Memory {
		for _, prev := range c.Tasks {
			out, ok := outputs[prev.Name]
			if !ok || seen[prev.Name] || prev.Name == task.Name {
				continue
			}
			sections = append(sections, fmt.Sprintf("## %s\n%s", prev.Name, out))
		}
	}

	return strings.Join(sections, "\n\n"), nil
}

func writeOutputFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
