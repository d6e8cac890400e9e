package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/types"
)

// Resolver turns tool references into Tool instances.
//
// Resolution has no side effects beyond provider discovery queries, and
// results are cached per (provider, server, names, parameters) tuple so a
// build never issues duplicate discovery calls. The cache spans exactly one
// build; the builder calls ResetCache before each build so changed provider
// catalogues are picked up by the next one.
type Resolver struct {
	registry  *Registry
	providers map[string]Provider
	limiter   *rate.Limiter

	mu    sync.Mutex
	cache map[string][]Tool

	logger *zap.Logger
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithProvider registers a tool provider under its own name.
func WithProvider(p Provider) ResolverOption {
	return func(r *Resolver) { r.providers[p.Name()] = p }
}

// WithDiscoveryRate limits provider discovery calls. The default allows
// 10 discoveries per second with a burst of 5.
func WithDiscoveryRate(limit rate.Limit, burst int) ResolverOption {
	return func(r *Resolver) { r.limiter = rate.NewLimiter(limit, burst) }
}

// WithResolverLogger sets the resolver logger.
func WithResolverLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a Resolver over the given built-in registry.
func NewResolver(registry *Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry:  registry,
		providers: make(map[string]Provider),
		limiter:   rate.NewLimiter(10, 5),
		cache:     make(map[string][]Tool),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "tool_resolver"))
	return r
}

// ResetCache drops every cached discovery result, forcing the next resolve
// of each reference to query its provider again.
func (r *Resolver) ResetCache() {
	r.mu.Lock()
	r.cache = make(map[string][]Tool)
	r.mu.Unlock()
}

// Resolve turns one tool reference into its Tool instances. A built-in
// reference yields exactly one tool; a provider-scoped reference yields one
// tool per requested name per server.
//
// A missing tool fails with TOOL_NOT_FOUND and a failed discovery call with
// PROVIDER_UNAVAILABLE; both are logged and propagated, never swallowed,
// since an agent missing a configured tool must fail loudly rather than run
// degraded.
func (r *Resolver) Resolve(ctx context.Context, ref config.ToolReference) ([]Tool, error) {
	if ref.IsBuiltin() {
		t, ok := r.registry.Get(ref.Name)
		if !ok {
			err := types.Errorf(types.ErrToolNotFound, "builtin tool %q not in catalogue (have: %s)",
				ref.Name, strings.Join(r.registry.Names(), ", ")).WithComponent(ref.Name)
			r.logger.Error("tool resolution failed", zap.String("tool", ref.Name), zap.Error(err))
			return nil, err
		}
		return []Tool{t}, nil
	}
	return r.resolveProviderScoped(ctx, ref)
}

func (r *Resolver) resolveProviderScoped(ctx context.Context, ref config.ToolReference) ([]Tool, error) {
	key := cacheKey(ref)
	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	provider, ok := r.providers[ref.Provider]
	if !ok {
		err := types.Errorf(types.ErrProviderUnavailable, "no provider registered for %q", ref.Provider).
			WithComponent(ref.String())
		r.logger.Error("tool resolution failed", zap.String("provider", ref.Provider), zap.Error(err))
		return nil, err
	}

	servers := ref.Servers
	if len(servers) == 0 {
		servers = []string{""}
	}

	var tools []Tool
	for _, server := range servers {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrProviderUnavailable, "discovery rate limit wait interrupted").
				WithComponent(ref.String()).WithCause(err)
		}

		descriptors, err := provider.Discover(ctx, server, ref.ToolNames)
		if err != nil {
			perr := types.Errorf(types.ErrProviderUnavailable, "discovery on provider %q server %q failed", ref.Provider, server).
				WithComponent(ref.String()).WithCause(err)
			r.logger.Error("tool discovery failed",
				zap.String("provider", ref.Provider),
				zap.String("server", server),
				zap.Error(err),
			)
			return nil, perr
		}

		byName := make(map[string]Descriptor, len(descriptors))
		for _, d := range descriptors {
			byName[d.Name] = d
		}
		for _, name := range ref.ToolNames {
			d, ok := byName[name]
			if !ok {
				err := types.Errorf(types.ErrToolNotFound, "tool %q not offered by provider %q server %q", name, ref.Provider, server).
					WithComponent(name)
				r.logger.Error("tool resolution failed", zap.String("tool", name), zap.Error(err))
				return nil, err
			}
			tools = append(tools, &providerTool{
				provider:   provider,
				server:     server,
				descriptor: d,
				parameters: ref.Parameters,
			})
		}
	}

	r.mu.Lock()
	r.cache[key] = tools
	r.mu.Unlock()

	r.logger.Debug("resolved provider tools",
		zap.String("provider", ref.Provider),
		zap.Int("count", len(tools)),
	)
	return tools, nil
}

// cacheKey canonicalizes a reference. encoding/json sorts map keys, so the
// parameter map serializes deterministically.
func cacheKey(ref config.ToolReference) string {
	params, _ := json.Marshal(ref.Parameters)
	return fmt.Sprintf("%s|%s|%s|%s",
		ref.Provider,
		strings.Join(ref.Servers, ","),
		strings.Join(ref.ToolNames, ","),
		params,
	)
}
