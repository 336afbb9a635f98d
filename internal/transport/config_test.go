package transport

import "testing"

func TestConfigValidateStdioRequiresCommand(t *testing.T) {
	cfg := &Config{Kind: KindStdio}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty stdio command")
	}
	cfg.Command = "echo"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfigValidateSSERequiresParseableURL(t *testing.T) {
	cfg := &Config{Kind: KindSSE, URL: "://bad"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unparseable URL")
	}
	cfg.URL = "ftp://example.com/events"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sse has no scheme restriction, got: %v", err)
	}
}

func TestConfigValidateWebSocketRewritesScheme(t *testing.T) {
	cfg := &Config{Kind: KindWebSocket, URL: "https://example.com/mcp"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.URL != "wss://example.com/mcp" {
		t.Fatalf("URL = %q, want wss rewrite", cfg.URL)
	}
}

func TestConfigValidateWebSocketRejectsBadScheme(t *testing.T) {
	cfg := &Config{Kind: KindWebSocket, URL: "ftp://example.com"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for disallowed scheme")
	}
}

func TestConfigValidateStreamableHTTPRequiresHTTPScheme(t *testing.T) {
	cfg := &Config{Kind: KindStreamableHTTP, URL: "ws://example.com"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
	cfg.URL = "https://example.com/mcp"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfigValidateReconnectRules(t *testing.T) {
	cfg := &Config{Kind: KindStdio, Command: "echo", Reconnect: ReconnectConfig{BackoffMultiplier: 1}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for backoffMultiplier <= 1")
	}

	cfg = &Config{Kind: KindStdio, Command: "echo", Reconnect: ReconnectConfig{MaxAttempts: -1}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative maxAttempts")
	}
}

func TestConfigValidateTimeoutMustBePositive(t *testing.T) {
	cfg := &Config{Kind: KindStdio, Command: "echo", Timeout: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}
