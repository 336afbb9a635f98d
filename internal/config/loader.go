// Package config decodes the proxy's configuration file into the
// in-memory shapes the rest of mcplexer builds against: the upstream
// server set (spec §3 UpstreamServerSpec), tool visibility rules, the
// inbound auth gate, and each upstream's secret/auth configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/revittco/mcplexer/internal/authprovider"
	"github.com/revittco/mcplexer/internal/envsubst"
	"github.com/revittco/mcplexer/internal/inboundauth"
	"github.com/revittco/mcplexer/internal/proxy"
	"github.com/revittco/mcplexer/internal/secrets"
	"github.com/revittco/mcplexer/internal/transport"
	"gopkg.in/yaml.v3"
)

// ProxyConfig is the top-level configuration document (spec §3). JSON is
// the canonical format; a file with a .yml/.yaml extension is accepted
// too and decoded the same way via yaml.v3 (a superset of JSON).
type ProxyConfig struct {
	Servers                []UpstreamServerSpec       `json:"servers" yaml:"servers" validate:"dive"`
	ExposeTools            []string                   `json:"exposeTools,omitempty" yaml:"exposeTools,omitempty"`
	HideTools              []string                   `json:"hideTools,omitempty" yaml:"hideTools,omitempty"`
	AlwaysVisibleTools     []string                   `json:"alwaysVisibleTools,omitempty" yaml:"alwaysVisibleTools,omitempty"`
	ExposeCoreTools        []string                   `json:"exposeCoreTools,omitempty" yaml:"exposeCoreTools,omitempty"`
	DefaultSecretProviders []secrets.ProviderConfig    `json:"defaultSecretProviders,omitempty" yaml:"defaultSecretProviders,omitempty"`
	DefaultPassthroughEnv  []string                    `json:"defaultPassthroughEnv,omitempty" yaml:"defaultPassthroughEnv,omitempty"`
	InboundAuth            *InboundAuthConfig          `json:"inboundAuth,omitempty" yaml:"inboundAuth,omitempty" validate:"omitempty"`
}

// InboundAuthConfig mirrors inboundauth.Config for decoding.
type InboundAuthConfig struct {
	Type   string   `json:"type" yaml:"type" validate:"omitempty,oneof=none bearer"`
	Tokens []string `json:"tokens,omitempty" yaml:"tokens,omitempty"`
}

// UpstreamServerSpec is one configured upstream (spec §3). Exactly one of
// Command or Transport is required; Transport takes the non-stdio shape
// (sse/websocket/streamable-http) while Command is shorthand for a stdio
// transport with no extra fields.
type UpstreamServerSpec struct {
	Name            string                  `json:"name" yaml:"name" validate:"required"`
	Command         *CommandSpec            `json:"command,omitempty" yaml:"command,omitempty" validate:"omitempty"`
	Transport       *TransportSpec          `json:"transport,omitempty" yaml:"transport,omitempty" validate:"omitempty"`
	Env             map[string]string       `json:"env,omitempty" yaml:"env,omitempty"`
	Auth            *AuthProviderConfig     `json:"auth,omitempty" yaml:"auth,omitempty" validate:"omitempty"`
	SecretProviders []secrets.ProviderConfig `json:"secretProviders,omitempty" yaml:"secretProviders,omitempty"`
}

// CommandSpec is the stdio shorthand form of UpstreamServerSpec.
type CommandSpec struct {
	Command string   `json:"command" yaml:"command" validate:"required"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// TransportSpec is the tagged-union TransportConfig (spec §3), minus the
// stdio variant (that's CommandSpec) and minus Env, which is resolved
// separately by the secret resolver and merged in by upstreams.go.
type TransportSpec struct {
	Type      string         `json:"type" yaml:"type" validate:"required,oneof=sse websocket streamable-http"`
	URL       string         `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	TimeoutMs int            `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty" validate:"omitempty,gt=0"`
	SessionID string         `json:"sessionId,omitempty" yaml:"sessionId,omitempty"`
	Reconnect *ReconnectSpec `json:"reconnect,omitempty" yaml:"reconnect,omitempty"`
}

// ReconnectSpec mirrors transport.ReconnectConfig for decoding.
type ReconnectSpec struct {
	MaxAttempts       *int     `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty" validate:"omitempty,gte=0"`
	InitialDelayMs    *float64 `json:"initialDelayMs,omitempty" yaml:"initialDelayMs,omitempty" validate:"omitempty,gte=0"`
	MaxDelayMs        *float64 `json:"maxDelayMs,omitempty" yaml:"maxDelayMs,omitempty" validate:"omitempty,gte=0"`
	BackoffMultiplier *float64 `json:"backoffMultiplier,omitempty" yaml:"backoffMultiplier,omitempty" validate:"omitempty,gt=1"`
}

// AuthProviderConfig is the tagged-union auth provider configuration
// (spec §3). Every string value may contain `${VAR}` references, resolved
// against the process environment at load time (spec §6); a missing
// variable is a fatal ConfigError.
type AuthProviderConfig struct {
	Type          string   `json:"type" yaml:"type" validate:"required,oneof=none bearer oauth2-client oauth2-code"`
	Token         string   `json:"token,omitempty" yaml:"token,omitempty"`
	ClientID      string   `json:"clientId,omitempty" yaml:"clientId,omitempty"`
	ClientSecret  string   `json:"clientSecret,omitempty" yaml:"clientSecret,omitempty"`
	TokenEndpoint string   `json:"tokenEndpoint,omitempty" yaml:"tokenEndpoint,omitempty" validate:"omitempty,url"`
	AuthEndpoint  string   `json:"authorizationEndpoint,omitempty" yaml:"authorizationEndpoint,omitempty" validate:"omitempty,url"`
	RedirectURI   string   `json:"redirectUri,omitempty" yaml:"redirectUri,omitempty"`
	Scope         string   `json:"scope,omitempty" yaml:"scope,omitempty"`
	Audience      string   `json:"audience,omitempty" yaml:"audience,omitempty"`
}

// LoadFile reads, parses, resolves `${VAR}` references, and validates a
// configuration file at path.
func LoadFile(path string) (*ProxyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data, strings.HasSuffix(path, ".json"))
}

// Parse decodes config data as YAML (a JSON superset) unless asJSON
// forces stricter json.Unmarshal semantics, resolves environment
// references, and validates the result.
func Parse(data []byte, asJSON bool) (*ProxyConfig, error) {
	var cfg ProxyConfig
	var err error
	if asJSON {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := resolveEnvRefs(&cfg); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// VisibilityConfig extracts the proxy.Config portion of cfg for use by
// internal/proxy's visibility decision function (spec §4.G).
func (cfg *ProxyConfig) VisibilityConfig() proxy.Config {
	return proxy.Config{
		ExposeTools:        cfg.ExposeTools,
		HideTools:          cfg.HideTools,
		AlwaysVisibleTools: cfg.AlwaysVisibleTools,
		ExposeCoreTools:    cfg.ExposeCoreTools,
	}
}

// InboundAuthConfig extracts the inboundauth.Config portion of cfg. When
// no inboundAuth section is present, it defaults to TypeNone (no
// enforcement).
func (cfg *ProxyConfig) InboundAuthConfig() inboundauth.Config {
	if cfg.InboundAuth == nil {
		return inboundauth.Config{Type: inboundauth.TypeNone}
	}
	return inboundauth.Config{
		Type:   inboundauth.Type(cfg.InboundAuth.Type),
		Tokens: cfg.InboundAuth.Tokens,
	}
}

// resolveEnvRefs expands `${VAR}` references in auth-provider and inbound
// token fields against the process environment (spec §3/§6); a missing
// variable is a fatal ConfigError, not a silent empty substitution.
func resolveEnvRefs(cfg *ProxyConfig) error {
	lookup := func(name string) (string, bool) { return os.LookupEnv(name) }

	for i := range cfg.Servers {
		a := cfg.Servers[i].Auth
		if a == nil {
			continue
		}
		fields := []*string{&a.Token, &a.ClientID, &a.ClientSecret, &a.TokenEndpoint, &a.AuthEndpoint, &a.RedirectURI, &a.Scope, &a.Audience}
		for _, f := range fields {
			expanded, err := envsubst.Expand(*f, lookup)
			if err != nil {
				return fmt.Errorf("server %q auth: %w", cfg.Servers[i].Name, err)
			}
			*f = expanded
		}
	}

	if cfg.InboundAuth != nil {
		for i, tok := range cfg.InboundAuth.Tokens {
			expanded, err := envsubst.Expand(tok, lookup)
			if err != nil {
				return fmt.Errorf("inboundAuth.tokens[%d]: %w", i, err)
			}
			cfg.InboundAuth.Tokens[i] = expanded
		}
	}
	return nil
}

// AuthProviderConfigFor converts spec.Auth into an authprovider.Config,
// or returns the none-provider zero value if spec has no auth section.
func AuthProviderConfigFor(spec UpstreamServerSpec) authprovider.Config {
	if spec.Auth == nil {
		return authprovider.Config{Kind: authprovider.KindNone}
	}
	a := spec.Auth
	switch authprovider.Kind(a.Type) {
	case authprovider.KindBearer:
		return authprovider.Config{Kind: authprovider.KindBearer, BearerToken: a.Token}
	case authprovider.KindOAuth2Client:
		return authprovider.Config{
			Kind: authprovider.KindOAuth2Client,
			ClientCredentials: authprovider.OAuth2ClientCredentialsConfig{
				TokenEndpoint: a.TokenEndpoint,
				ClientID:      a.ClientID,
				ClientSecret:  a.ClientSecret,
				Scopes:        splitScope(a.Scope),
				Audience:      a.Audience,
			},
		}
	case authprovider.KindOAuth2Code:
		return authprovider.Config{
			Kind: authprovider.KindOAuth2Code,
			AuthCode: authprovider.OAuth2AuthCodeConfig{
				AuthorizeEndpoint: a.AuthEndpoint,
				TokenEndpoint:     a.TokenEndpoint,
				ClientID:          a.ClientID,
				ClientSecret:      a.ClientSecret,
				RedirectURI:       a.RedirectURI,
				Scopes:            splitScope(a.Scope),
			},
		}
	default:
		return authprovider.Config{Kind: authprovider.KindNone}
	}
}

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}

// TransportConfigFor converts spec's command/transport union into a
// transport.Config, filling in Env from resolvedEnv (the output of the
// secret resolver, spec §4.A).
func TransportConfigFor(spec UpstreamServerSpec, resolvedEnv map[string]string) (transport.Config, error) {
	switch {
	case spec.Command != nil:
		return transport.Config{
			Kind:    transport.KindStdio,
			Command: spec.Command.Command,
			Args:    spec.Command.Args,
			Env:     resolvedEnv,
		}, nil
	case spec.Transport != nil:
		t := spec.Transport
		kind, err := parseTransportKind(t.Type)
		if err != nil {
			return transport.Config{}, fmt.Errorf("upstream %q: %w", spec.Name, err)
		}
		tc := transport.Config{
			Kind: kind,
			URL:  t.URL,
			Env:  resolvedEnv,
		}
		if t.TimeoutMs > 0 {
			tc.Timeout = time.Duration(t.TimeoutMs) * time.Millisecond
		}
		if t.Reconnect != nil {
			tc.Reconnect = reconnectConfigFor(t.Reconnect)
		}
		return tc, nil
	default:
		return transport.Config{}, fmt.Errorf("upstream %q: one of command or transport is required", spec.Name)
	}
}

func parseTransportKind(t string) (transport.Kind, error) {
	switch t {
	case "stdio":
		return transport.KindStdio, nil
	case "sse":
		return transport.KindSSE, nil
	case "websocket":
		return transport.KindWebSocket, nil
	case "streamable-http":
		return transport.KindStreamableHTTP, nil
	default:
		return "", fmt.Errorf("unknown transport type %q", t)
	}
}

func reconnectConfigFor(r *ReconnectSpec) transport.ReconnectConfig {
	var rc transport.ReconnectConfig
	if r.MaxAttempts != nil {
		rc.MaxAttempts = *r.MaxAttempts
	}
	if r.InitialDelayMs != nil {
		rc.InitialDelayMs = *r.InitialDelayMs
	}
	if r.MaxDelayMs != nil {
		rc.MaxDelayMs = *r.MaxDelayMs
	}
	if r.BackoffMultiplier != nil {
		rc.BackoffMultiplier = *r.BackoffMultiplier
	}
	return rc
}
