package secrets

import (
	"context"
	"fmt"
	"os"
)

// ResolveInput carries everything Resolve needs about one upstream's
// secret configuration plus the proxy-wide defaults, mirroring
// UpstreamServerSpec + ProxyConfig's default_* fields without importing
// the config package (avoids a secrets<->config import cycle).
type ResolveInput struct {
	// PassthroughEnv lists ambient process env var names to pass through
	// verbatim (ProxyConfig.defaultPassthroughEnv).
	PassthroughEnv []string
	// DefaultProviders run in order before the spec's own providers
	// (ProxyConfig.defaultSecretProviders).
	DefaultProviders []ProviderConfig
	// SpecProviders are the upstream's own secretProviders, in order.
	SpecProviders []ProviderConfig
	// InlineEnv is the upstream spec's literal `env` map, applied last.
	InlineEnv map[string]string
}

// Resolver merges an input's providers into a single environment map per
// the four-tier precedence of spec §4.A: later tiers win.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver { return &Resolver{} }

// Resolve produces the environment to inject into an upstream process.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (map[string]string, error) {
	env := make(map[string]string)

	for _, name := range in.PassthroughEnv {
		if v, ok := os.LookupEnv(name); ok {
			env[name] = v
		}
	}

	if err := r.applyProviders(ctx, env, in.DefaultProviders); err != nil {
		return nil, fmt.Errorf("default secret providers: %w", err)
	}
	if err := r.applyProviders(ctx, env, in.SpecProviders); err != nil {
		return nil, fmt.Errorf("upstream secret providers: %w", err)
	}

	for k, v := range in.InlineEnv {
		env[k] = v
	}

	return env, nil
}

func (r *Resolver) applyProviders(ctx context.Context, env map[string]string, configs []ProviderConfig) error {
	for _, cfg := range configs {
		provider, err := New(cfg)
		if err != nil {
			return err
		}
		resolved, err := provider.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("%s provider: %w", cfg.Type, err)
		}
		for k, v := range resolved {
			env[k] = v
		}
	}
	return nil
}
