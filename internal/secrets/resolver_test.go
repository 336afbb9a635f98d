package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDotenvInterpolation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "HOME=/home/user\n" +
		"PATH_WITH_VAR=\"$HOME/bin:$PATH\"\n" +
		"PATH=/usr/bin:/bin\n" +
		"A=\"$B\"\n" +
		"B=\"$A\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	p := &dotenvProvider{cfg: DotenvConfig{Path: path}}
	got, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if want := "/home/user/bin:/usr/bin:/bin"; got["PATH_WITH_VAR"] != want {
		t.Fatalf("PATH_WITH_VAR = %q, want %q", got["PATH_WITH_VAR"], want)
	}
	if got["A"] != "" || got["B"] != "" {
		t.Fatalf("circular refs A=%q B=%q, want both empty", got["A"], got["B"])
	}
}

func TestDotenvMissingFileIsEmptyNotFatal(t *testing.T) {
	p := &dotenvProvider{cfg: DotenvConfig{Path: "/nonexistent/path/.env"}}
	got, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestProcessProviderBlocklistWinsOverAllowlist(t *testing.T) {
	t.Setenv("MCPLEX_TEST_A", "a")
	t.Setenv("MCPLEX_TEST_B", "b")

	p := &processProvider{cfg: ProcessConfig{
		Allowlist: []string{"MCPLEX_TEST_A", "MCPLEX_TEST_B"},
		Blocklist: []string{"MCPLEX_TEST_B"},
	}}
	got, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["MCPLEX_TEST_A"]; !ok {
		t.Fatal("expected MCPLEX_TEST_A present")
	}
	if _, ok := got["MCPLEX_TEST_B"]; ok {
		t.Fatal("expected MCPLEX_TEST_B excluded by blocklist")
	}
}

func TestProcessProviderPrefixPreservesFullKey(t *testing.T) {
	t.Setenv("MYAPP_TOKEN", "secret")
	p := &processProvider{cfg: ProcessConfig{Prefix: "MYAPP_"}}
	got, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := got["MYAPP_TOKEN"]; !ok || v != "secret" {
		t.Fatalf("expected full key MYAPP_TOKEN preserved, got %v", got)
	}
}

func TestResolverPrecedence(t *testing.T) {
	t.Setenv("PASSTHROUGH_VAR", "from-passthrough")

	r := NewResolver()
	got, err := r.Resolve(context.Background(), ResolveInput{
		PassthroughEnv: []string{"PASSTHROUGH_VAR"},
		DefaultProviders: []ProviderConfig{
			{Type: "inline", Inline: InlineConfig{Values: map[string]string{
				"PASSTHROUGH_VAR": "from-default-provider",
				"DEFAULT_ONLY":    "default",
			}}},
		},
		SpecProviders: []ProviderConfig{
			{Type: "inline", Inline: InlineConfig{Values: map[string]string{
				"PASSTHROUGH_VAR": "from-spec-provider",
			}}},
		},
		InlineEnv: map[string]string{
			"PASSTHROUGH_VAR": "from-inline-env",
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if got["PASSTHROUGH_VAR"] != "from-inline-env" {
		t.Fatalf("want inline env to win, got %q", got["PASSTHROUGH_VAR"])
	}
	if got["DEFAULT_ONLY"] != "default" {
		t.Fatalf("want DEFAULT_ONLY preserved, got %q", got["DEFAULT_ONLY"])
	}
}
