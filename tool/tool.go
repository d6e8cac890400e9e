package tool

import (
	"context"
)

// Tool is an invocable capability attachable to an agent or task.
// Implementations take structured input and return text output.
type Tool interface {
	// Name returns the tool's unique name.
	Name() string
	// Description explains what the tool does, for prompt construction.
	Description() string
	// Invoke runs the tool with structured arguments.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// InvokeFunc is the signature of a tool implementation function.
type InvokeFunc func(ctx context.Context, args map[string]any) (string, error)

// FuncTool adapts a plain function into a Tool.
type FuncTool struct {
	name        string
	description string
	fn          InvokeFunc
}

// NewFuncTool creates a Tool backed by fn.
func NewFuncTool(name, description string, fn InvokeFunc) *FuncTool {
	return &FuncTool{name: name, description: description, fn: fn}
}

// Name returns the tool name.
func (t *FuncTool) Name() string { return t.name }

// Description returns the tool description.
func (t *FuncTool) Description() string { return t.description }

// Invoke runs the wrapped function.
func (t *FuncTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

// Descriptor describes one tool exposed by a provider's discovery call.
type Descriptor struct {
	// Name is the tool name as the provider knows it.
	Name string `json:"name"`
	// Description explains the tool.
	Description string `json:"description,omitempty"`
	// InputSchema is the provider-declared argument schema, if any.
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Provider exposes tool discovery and invocation for one external tool
// source. Implementations live outside the engine; the engine only needs
// this seam.
type Provider interface {
	// Name identifies the provider (the provider key in tool references).
	Name() string
	// Discover returns the tool descriptors available on the given server,
	// optionally filtered to the given names. An empty filter returns all.
	Discover(ctx context.Context, server string, names []string) ([]Descriptor, error)
	// Call invokes a discovered tool on the given server.
	Call(ctx context.Context, server, tool string, args map[string]any) (string, error)
}

// providerTool adapts a discovered Descriptor into a Tool that calls back
// into its provider. Resolution parameters are merged under the invocation
// arguments, with invocation arguments winning on key conflicts.
type providerTool struct {
	provider   Provider
	server     string
	descriptor Descriptor
	parameters map[string]any
}

func (t *providerTool) Name() string { return t.descriptor.Name }

func (t *providerTool) Description() string { return t.descriptor.Description }

func (t *providerTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	merged := make(map[string]any, len(t.parameters)+len(args))
	for k, v := range t.parameters {
		merged[k] = v
	}
	for k, v := range args {
		merged[k] = v
	}
	return t.provider.Call(ctx, t.server, t.descriptor.Name, merged)
}
