package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/types"
)

// stubProvider implements Provider with canned descriptors and call counts.
type stubProvider struct {
	name          string
	descriptors   map[string][]Descriptor
	discoverErr   error
	discoverCalls int
	lastCallArgs  map[string]any
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Discover(_ context.Context, server string, _ []string) ([]Descriptor, error) {
	p.discoverCalls++
	if p.discoverErr != nil {
		return nil, p.discoverErr
	}
	return p.descriptors[server], nil
}

func (p *stubProvider) Call(_ context.Context, _, tool string, args map[string]any) (string, error) {
	p.lastCallArgs = args
	return "called " + tool, nil
}

func TestResolver_Builtin(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register(NewFuncTool("echo", "echoes its input", func(_ context.Context, args map[string]any) (string, error) {
		s, _ := args["text"].(string)
		return s, nil
	}))
	r := NewResolver(reg)

	tools, err := r.Resolve(context.Background(), config.ToolReference{Name: "echo"})
	require.NoError(t, err)
	require.Len(t, tools, 1)

	out, err := tools[0].Invoke(context.Background(), map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestResolver_BuiltinNotFound(t *testing.T) {
	r := NewResolver(NewRegistry(nil))

	_, err := r.Resolve(context.Background(), config.ToolReference{Name: "missing"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrToolNotFound))
	assert.Contains(t, err.Error(), "missing")
}

func TestResolver_ProviderScoped(t *testing.T) {
	p := &stubProvider{
		name: "mcp",
		descriptors: map[string][]Descriptor{
			"docs": {
				{Name: "search", Description: "search docs"},
				{Name: "fetch", Description: "fetch a doc"},
			},
		},
	}
	r := NewResolver(NewRegistry(nil), WithProvider(p))

	ref := config.ToolReference{
		Provider:   "mcp",
		Servers:    []string{"docs"},
		ToolNames:  []string{"search", "fetch"},
		Parameters: map[string]any{"depth": 2},
	}
	tools, err := r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "search", tools[0].Name())

	// Resolution parameters merge under invocation arguments.
	out, err := tools[0].Invoke(context.Background(), map[string]any{"query": "go"})
	require.NoError(t, err)
	assert.Equal(t, "called search", out)
	assert.Equal(t, 2, p.lastCallArgs["depth"])
	assert.Equal(t, "go", p.lastCallArgs["query"])
}

func TestResolver_CachesPerReference(t *testing.T) {
	p := &stubProvider{
		name: "mcp",
		descriptors: map[string][]Descriptor{
			"docs": {{Name: "search"}},
		},
	}
	r := NewResolver(NewRegistry(nil), WithProvider(p))

	ref := config.ToolReference{Provider: "mcp", Servers: []string{"docs"}, ToolNames: []string{"search"}}
	_, err := r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 1, p.discoverCalls, "second resolve must hit the cache")

	// A different parameter set is a different cache entry.
	ref.Parameters = map[string]any{"depth": 1}
	_, err = r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 2, p.discoverCalls)
}

func TestResolver_ResetCacheDropsStaleDiscovery(t *testing.T) {
	p := &stubProvider{
		name: "mcp",
		descriptors: map[string][]Descriptor{
			"docs": {{Name: "search"}},
		},
	}
	r := NewResolver(NewRegistry(nil), WithProvider(p))

	ref := config.ToolReference{Provider: "mcp", Servers: []string{"docs"}, ToolNames: []string{"search"}}
	_, err := r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, 1, p.discoverCalls)

	// The provider drops the tool; a reset resolver notices, a warm one
	// would have kept serving the stale descriptor.
	p.descriptors["docs"] = nil
	r.ResetCache()

	_, err = r.Resolve(context.Background(), ref)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrToolNotFound))
	assert.Equal(t, 2, p.discoverCalls)
}

func TestResolver_ProviderUnavailable(t *testing.T) {
	p := &stubProvider{name: "mcp", discoverErr: errors.New("connection refused")}
	r := NewResolver(NewRegistry(nil), WithProvider(p))

	ref := config.ToolReference{Provider: "mcp", Servers: []string{"docs"}, ToolNames: []string{"search"}}
	_, err := r.Resolve(context.Background(), ref)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProviderUnavailable))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestResolver_UnknownProvider(t *testing.T) {
	r := NewResolver(NewRegistry(nil))

	ref := config.ToolReference{Provider: "ghost", ToolNames: []string{"x"}}
	_, err := r.Resolve(context.Background(), ref)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProviderUnavailable))
}

func TestResolver_ToolMissingFromDiscovery(t *testing.T) {
	p := &stubProvider{
		name:        "mcp",
		descriptors: map[string][]Descriptor{"docs": {{Name: "search"}}},
	}
	r := NewResolver(NewRegistry(nil), WithProvider(p))

	ref := config.ToolReference{Provider: "mcp", Servers: []string{"docs"}, ToolNames: []string{"translate"}}
	_, err := r.Resolve(context.Background(), ref)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrToolNotFound))
	assert.Contains(t, err.Error(), "translate")
}
