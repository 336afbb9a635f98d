// Package secrets resolves the environment mcplex injects into each
// upstream process from an ordered chain of providers (spec §4.A).
package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ProviderConfig is the tagged-union configuration for a single secret
// provider: "dotenv", "process", or "inline".
type ProviderConfig struct {
	Type    string
	Dotenv  DotenvConfig
	Process ProcessConfig
	Inline  InlineConfig
}

// DotenvConfig configures the dotenv provider.
type DotenvConfig struct {
	Path     string `json:"path" yaml:"path"`
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
}

// ProcessConfig configures the process-env provider.
type ProcessConfig struct {
	Prefix    string   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Allowlist []string `json:"allowlist,omitempty" yaml:"allowlist,omitempty"`
	Blocklist []string `json:"blocklist,omitempty" yaml:"blocklist,omitempty"`
}

// InlineConfig configures the inline literal-map provider.
type InlineConfig struct {
	Values map[string]string `json:"values" yaml:"values"`
}

// UnmarshalJSON decodes the discriminated union, rejecting unknown types
// at parse time rather than deferring the failure to runtime (spec §9).
func (c *ProviderConfig) UnmarshalJSON(data []byte) error {
	var disc struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return fmt.Errorf("decode secret provider: %w", err)
	}

	switch disc.Type {
	case "dotenv":
		if err := json.Unmarshal(data, &c.Dotenv); err != nil {
			return fmt.Errorf("decode dotenv provider: %w", err)
		}
	case "process":
		if err := json.Unmarshal(data, &c.Process); err != nil {
			return fmt.Errorf("decode process provider: %w", err)
		}
	case "inline":
		if err := json.Unmarshal(data, &c.Inline); err != nil {
			return fmt.Errorf("decode inline provider: %w", err)
		}
		if c.Inline.Values == nil {
			c.Inline.Values = make(map[string]string)
		}
	default:
		return fmt.Errorf("unknown secret provider type %q", disc.Type)
	}

	c.Type = disc.Type
	return nil
}

// UnmarshalYAML decodes the discriminated union from a YAML config file,
// matching UnmarshalJSON's semantics.
func (c *ProviderConfig) UnmarshalYAML(value *yaml.Node) error {
	var disc struct {
		Type string `yaml:"type"`
	}
	if err := value.Decode(&disc); err != nil {
		return fmt.Errorf("decode secret provider: %w", err)
	}

	switch disc.Type {
	case "dotenv":
		if err := value.Decode(&c.Dotenv); err != nil {
			return fmt.Errorf("decode dotenv provider: %w", err)
		}
	case "process":
		if err := value.Decode(&c.Process); err != nil {
			return fmt.Errorf("decode process provider: %w", err)
		}
	case "inline":
		if err := value.Decode(&c.Inline); err != nil {
			return fmt.Errorf("decode inline provider: %w", err)
		}
		if c.Inline.Values == nil {
			c.Inline.Values = make(map[string]string)
		}
	default:
		return fmt.Errorf("unknown secret provider type %q", disc.Type)
	}

	c.Type = disc.Type
	return nil
}

// Provider produces a key/value environment map. Implementations never
// fail fatally on a missing resource (spec §4.A: "missing dotenv file ->
// empty map, non-fatal"); Resolve returns an error only for conditions a
// caller must react to (at present, a read error while scanning a dotenv
// file that exists).
type Provider interface {
	Resolve(ctx context.Context) (map[string]string, error)
}

// New constructs the Provider for a given ProviderConfig.
func New(cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "dotenv":
		return &dotenvProvider{cfg: cfg.Dotenv}, nil
	case "process":
		return &processProvider{cfg: cfg.Process}, nil
	case "inline":
		return &inlineProvider{cfg: cfg.Inline}, nil
	default:
		return nil, fmt.Errorf("unknown secret provider type %q", cfg.Type)
	}
}
