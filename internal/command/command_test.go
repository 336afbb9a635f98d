package command

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/revittco/mcplexer/internal/proxy"
)

type fakeCommand struct {
	name string
	deps []ServerDependency
}

func (f *fakeCommand) Name() string        { return f.name }
func (f *fakeCommand) Description() string { return "fake" }
func (f *fakeCommand) GetMCPDefinitions() []Tool {
	return []Tool{{Name: f.name + "__tool", Description: "a tool"}}
}
func (f *fakeCommand) ExecuteToolViaMCP(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	return TextResult("ok:" + name), nil
}
func (f *fakeCommand) ExecuteViaCLI(ctx context.Context, args []string) error { return nil }
func (f *fakeCommand) GetServerDependencies() []ServerDependency             { return f.deps }

type mapChecker map[string]bool

func (m mapChecker) IsConfigured(name string) bool { return m[name] }
func (m mapChecker) IsConnected(name string) bool  { return m[name] }

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry(nil, nil, nil)
	reg.Register(&fakeCommand{name: "debugger"})

	defs := reg.ToolDefinitions()
	if len(defs) != 1 || defs[0].Name != "debugger__tool" {
		t.Fatalf("unexpected tool definitions: %+v", defs)
	}

	res, err := reg.Dispatch(context.Background(), "debugger__tool", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Content[0].Text != "ok:debugger__tool" {
		t.Errorf("unexpected result: %+v", res)
	}

	if _, err := reg.Dispatch(context.Background(), "missing__tool", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestRequireServerConfiguredNoProxyContext(t *testing.T) {
	reg := NewRegistry(nil, nil, nil)
	if got := reg.RequireServerConfigured(ServerDependency{Aliases: []string{"github"}}); got != nil {
		t.Errorf("expected nil with no proxy context, got %+v", got)
	}
}

func TestRequireServerConfiguredEmptyAliases(t *testing.T) {
	checker := mapChecker{"github": true}
	reg := NewRegistry(checker, checker, nil)
	got := reg.RequireServerConfigured(ServerDependency{})
	if got == nil || got.Configured {
		t.Errorf("expected {Configured:false} for empty alias list without lookup, got %+v", got)
	}
}

func TestRequireServerConfigured(t *testing.T) {
	checker := mapChecker{"github": true}
	reg := NewRegistry(checker, checker, nil)

	got := reg.RequireServerConfigured(ServerDependency{Aliases: []string{"github"}})
	if got == nil || !got.Configured {
		t.Errorf("expected configured=true, got %+v", got)
	}

	got = reg.RequireServerConfigured(ServerDependency{Aliases: []string{"GitHub"}})
	if got == nil || got.Configured {
		t.Errorf("alias comparison must be case-sensitive, got %+v", got)
	}

	got = reg.RequireServerConfigured(ServerDependency{Aliases: []string{"gitlab"}})
	if got == nil || got.Configured {
		t.Errorf("expected configured=false for unmatched alias, got %+v", got)
	}
}

func TestRequireServerConnectedEnsureToolsExposed(t *testing.T) {
	checker := mapChecker{"github": true}
	enableSet := proxy.NewEnableSet()
	reg := NewRegistry(checker, checker, enableSet)

	dep := ServerDependency{Aliases: []string{"github"}, EnsureToolsExposed: true}
	got := reg.RequireServerConnected(dep)
	if got == nil || !got.Configured {
		t.Fatalf("expected connected=true, got %+v", got)
	}

	if !enableSet.Contains("github__anything") {
		t.Error("expected github__* to be dynamically enabled")
	}
}

func TestRequireServerConnectedWithoutEnsureToolsExposed(t *testing.T) {
	checker := mapChecker{"github": true}
	enableSet := proxy.NewEnableSet()
	reg := NewRegistry(checker, checker, enableSet)

	dep := ServerDependency{Aliases: []string{"github"}}
	reg.RequireServerConnected(dep)

	if enableSet.Contains("github__anything") {
		t.Error("dynamic enable set should stay empty without EnsureToolsExposed")
	}
}
