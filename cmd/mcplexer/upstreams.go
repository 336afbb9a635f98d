package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/revittco/mcplexer/internal/authprovider"
	"github.com/revittco/mcplexer/internal/command"
	"github.com/revittco/mcplexer/internal/config"
	"github.com/revittco/mcplexer/internal/multiplexer"
	"github.com/revittco/mcplexer/internal/proxy"
	"github.com/revittco/mcplexer/internal/secrets"
	"github.com/revittco/mcplexer/internal/tokenstore"
	"github.com/revittco/mcplexer/internal/transport"
)

// buildMultiplexer assembles the spec §4.G Proxy Multiplexer from the
// loaded config: its upstream set (§4.F clients, built on demand, each
// with secrets resolved per §4.A and an auth provider per §4.C), the
// static visibility rules, a fresh dynamic enable set, and the
// first-party command registry (§4.I), wired so commands' server
// dependency checks (RequireServerConfigured/RequireServerConnected)
// resolve against this same multiplexer.
func buildMultiplexer(ctx context.Context, cfg *config.ProxyConfig, log *slog.Logger) (*multiplexer.Multiplexer, error) {
	specs, err := buildUpstreamSpecs(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build upstream specs: %w", err)
	}

	var visCfg proxy.Config
	if cfg != nil {
		visCfg = cfg.VisibilityConfig()
	}
	enableSet := proxy.NewEnableSet()
	factory := transport.NewFactory(nil, log)

	mux := multiplexer.New(specs, factory, visCfg, enableSet, nil, log)
	registry := command.NewRegistry(mux, mux, enableSet)
	scriptCmd := command.NewScriptCommand()
	scriptCmd.SetToolCaller(mux)
	registry.Register(scriptCmd)
	registry.Register(command.NewStubCommand("js-debugger", "Inspect and step through a running upstream's JS debugger session.", []string{"js-debugger"}, true))
	registry.Register(command.NewStubCommand("tsci", "Query the TypeScript symbol index built for a connected upstream.", []string{"tsci"}, true))
	mux.SetCommands(registry)
	return mux, nil
}

// buildUpstreamSpecs converts the config's servers list (spec §3's
// UpstreamServerSpec) into transport.Config-backed multiplexer.UpstreamSpec
// values: each upstream's environment comes from the secret resolver
// (§4.A, precedence over cfg's defaults/the spec's own providers/its
// inline env), and each upstream's outbound credentials come from the
// auth provider family (§4.C) built from its auth section. A nil cfg
// yields no upstreams, matching a deployment that only exposes
// core/command tools.
func buildUpstreamSpecs(ctx context.Context, cfg *config.ProxyConfig) ([]multiplexer.UpstreamSpec, error) {
	if cfg == nil {
		return nil, nil
	}
	resolver := secrets.NewResolver()
	specs := make([]multiplexer.UpstreamSpec, 0, len(cfg.Servers))
	for _, d := range cfg.Servers {
		env, err := resolver.Resolve(ctx, secrets.ResolveInput{
			PassthroughEnv:   cfg.DefaultPassthroughEnv,
			DefaultProviders: cfg.DefaultSecretProviders,
			SpecProviders:    d.SecretProviders,
			InlineEnv:        d.Env,
		})
		if err != nil {
			return nil, fmt.Errorf("upstream %q: resolve secrets: %w", d.Name, err)
		}

		tcfg, err := config.TransportConfigFor(d, env)
		if err != nil {
			return nil, err
		}

		provider, err := authprovider.New(config.AuthProviderConfigFor(d), tokenstore.NewMemoryStorage())
		if err != nil {
			return nil, fmt.Errorf("upstream %q: build auth provider: %w", d.Name, err)
		}

		specs = append(specs, multiplexer.UpstreamSpec{
			Name:      d.Name,
			Transport: tcfg,
			Auth:      provider,
		})
	}
	return specs, nil
}
