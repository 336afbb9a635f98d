package transport

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// Kind discriminates the four transport variants (spec §2/§4.D).
type Kind string

const (
	KindStdio          Kind = "stdio"
	KindSSE            Kind = "sse"
	KindWebSocket      Kind = "websocket"
	KindStreamableHTTP Kind = "streamable-http"
)

// ReconnectConfig bounds the reconnection backoff sequence (spec §4.E/§5).
type ReconnectConfig struct {
	MaxAttempts       int // 0 disables reconnection
	InitialDelayMs    float64
	MaxDelayMs        float64
	BackoffMultiplier float64
}

// Config is the resolved configuration for a single transport instance,
// discriminated by Kind.
type Config struct {
	Kind Kind

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// sse / websocket / streamable-http
	URL string

	Timeout   time.Duration
	Reconnect ReconnectConfig
}

// Validate enforces the per-kind construction rules spec §4.D lists,
// rewriting a websocket http(s) URL to ws(s) in place.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindStdio:
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("transport config: stdio requires a non-empty command")
		}
	case KindSSE:
		if err := c.requireParseableURL(nil); err != nil {
			return err
		}
	case KindWebSocket:
		if err := c.requireParseableURL([]string{"ws", "wss", "http", "https"}); err != nil {
			return err
		}
		c.rewriteWebSocketScheme()
	case KindStreamableHTTP:
		if err := c.requireParseableURL([]string{"http", "https"}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("transport config: unknown kind %q", c.Kind)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("transport config: timeout must be strictly positive if set")
	}
	return c.Reconnect.validate()
}

func (c *Config) requireParseableURL(allowedSchemes []string) error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("transport config: %s requires a URL", c.Kind)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("transport config: invalid URL: %w", err)
	}
	if allowedSchemes == nil {
		return nil
	}
	for _, s := range allowedSchemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("transport config: %s URL scheme must be one of %v, got %q", c.Kind, allowedSchemes, u.Scheme)
}

func (c *Config) rewriteWebSocketScheme() {
	u, err := url.Parse(c.URL)
	if err != nil {
		return
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return
	}
	c.URL = u.String()
}

func (r ReconnectConfig) validate() error {
	if r.MaxAttempts < 0 {
		return fmt.Errorf("transport config: reconnect.maxAttempts must be >= 0")
	}
	for name, v := range map[string]float64{
		"initialDelayMs": r.InitialDelayMs,
		"maxDelayMs":     r.MaxDelayMs,
	} {
		if v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return fmt.Errorf("transport config: reconnect.%s must be a finite number >= 0", name)
		}
	}
	if r.BackoffMultiplier != 0 && r.BackoffMultiplier <= 1 {
		return fmt.Errorf("transport config: reconnect.backoffMultiplier must be strictly > 1")
	}
	return nil
}
