package crew

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/tool"
	"github.com/BaSui01/crewflow/types"
)

// Request is one reasoning request handed to a Completer. The tools listed
// are available for the collaborator to call; the engine itself never
// decides when a tool runs.
type Request struct {
	// Prompt is the fully composed task prompt.
	Prompt string
	// Context carries the textual outputs of predecessor tasks.
	Context string
	// Tools are the invocable capabilities attached to the agent and task.
	Tools []tool.Tool
}

// Completer is the reasoning collaborator behind an agent. Every agent
// "thought" and tool call is delegated through this seam; the engine treats
// each call as opaque and blocking.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// LLMConfig selects the model behind an agent.
type LLMConfig struct {
	Provider    string
	Model       string
	Temperature float64
}

// AgentConfig configures an Agent.
type AgentConfig struct {
	Role            string
	Goal            string
	Backstory       string
	AllowDelegation bool
	Verbose         bool
	LLM             LLMConfig
}

// Agent is a configured role bound to a reasoning collaborator.
// Immutable once built.
type Agent struct {
	Role            string
	Goal            string
	Backstory       string
	AllowDelegation bool
	Verbose         bool
	LLM             LLMConfig
	Tools           []tool.Tool

	completer Completer
	logger    *zap.Logger
}

// NewAgent creates an Agent.
func NewAgent(cfg AgentConfig, tools []tool.Tool, completer Completer, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		Role:            cfg.Role,
		Goal:            cfg.Goal,
		Backstory:       cfg.Backstory,
		AllowDelegation: cfg.AllowDelegation,
		Verbose:         cfg.Verbose,
		LLM:             cfg.LLM,
		Tools:           tools,
		completer:       completer,
		logger:          logger.With(zap.String("component", "agent"), zap.String("role", cfg.Role)),
	}
}

// ExecuteTask performs one task: it composes the prompt from the agent's
// identity and the task description, then delegates to the completer.
func (a *Agent) ExecuteTask(ctx context.Context, task *Task, input, contextText string) (string, error) {
	if a.completer == nil {
		return "", types.Errorf(types.ErrExecution, "agent %q has no completer", a.Role).WithComponent(task.Name)
	}

	prompt := a.composePrompt(task, input, contextText)
	tools := append(append([]tool.Tool{}, a.Tools...), task.Tools...)

	if a.Verbose {
		a.logger.Info("executing task",
			zap.String("task", task.Name),
			zap.Int("tools", len(tools)),
		)
	} else {
		a.logger.Debug("executing task", zap.String("task", task.Name))
	}

	output, err := a.completer.Complete(ctx, Request{
		Prompt:  prompt,
		Context: contextText,
		Tools:   tools,
	})
	if err != nil {
		a.logger.Error("task execution failed",
			zap.String("task", task.Name),
			zap.Error(err),
		)
		return "", types.Errorf(types.ErrExecution, "agent %q failed", a.Role).
			WithComponent(task.Name).WithCause(err)
	}
	return output, nil
}

func (a *Agent) composePrompt(task *Task, input, contextText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", a.Role)
	if a.Goal != "" {
		fmt.Fprintf(&b, "Your goal: %s\n", a.Goal)
	}
	if a.Backstory != "" {
		fmt.Fprintf(&b, "Backstory: %s\n", a.Backstory)
	}
	fmt.Fprintf(&b, "\nTask: %s\n", task.RenderDescription(input))
	if task.ExpectedOutput != "" {
		fmt.Fprintf(&b, "Expected output: %s\n", task.ExpectedOutput)
	}
	if contextText != "" {
		fmt.Fprintf(&b, "\nContext from previous tasks:\n%s\n", contextText)
	}
	return b.String()
}
