package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dop251/goja"

	"github.com/revittco/mcplexer/internal/mcpwire"
)

// ToolCaller is the subset of the multiplexer a ScriptCommand needs to
// run "code mode": enumerate the tools currently visible to the
// downstream and invoke one by its namespaced name. Set after
// construction via SetToolCaller, mirroring Registry's own
// ConfiguredChecker/ConnectedChecker wiring — the multiplexer that owns
// the registry also owns the tool set a script runs against.
type ToolCaller interface {
	ListTools(ctx context.Context) ([]mcpwire.Tool, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// ScriptCommand exposes a single "run_script" tool that runs a short
// JavaScript program in an embedded goja VM, with every currently visible
// MCP tool injected as a callable JS function — "code mode": instead of
// one MCP round-trip per tool call, an LLM host can compose several tool
// calls (loops, conditionals, intermediate values) into one script and
// get back a single result.
type ScriptCommand struct {
	caller ToolCaller
}

// NewScriptCommand constructs a ScriptCommand. Call SetToolCaller before
// first use; an unset caller causes run_script to report every tool
// unavailable rather than panic.
func NewScriptCommand() *ScriptCommand {
	return &ScriptCommand{}
}

// SetToolCaller wires the live tool set a script runs against.
func (c *ScriptCommand) SetToolCaller(caller ToolCaller) {
	c.caller = caller
}

func (c *ScriptCommand) Name() string { return "run_script" }

func (c *ScriptCommand) Description() string {
	return "Run a short JavaScript program with every visible MCP tool available as a callable function."
}

func (c *ScriptCommand) GetMCPDefinitions() []Tool {
	return []Tool{{
		Name:        "run_script",
		Description: c.Description(),
		InputSchema: json.RawMessage(`{"type":"object","properties":{"script":{"type":"string"}},"required":["script"]}`),
	}}
}

type runScriptArgs struct {
	Script string `json:"script"`
}

func (c *ScriptCommand) ExecuteToolViaMCP(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	if name != "run_script" {
		return Result{}, fmt.Errorf("run_script: unknown tool %q", name)
	}
	var in runScriptArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	out, err := c.run(ctx, in.Script)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return TextResult(out), nil
}

func (c *ScriptCommand) ExecuteViaCLI(ctx context.Context, args []string) error {
	var script string
	switch {
	case len(args) > 0:
		script = args[0]
	default:
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("run_script: read stdin: %w", err)
		}
		script = string(b)
	}
	out, err := c.run(ctx, script)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, out)
	return nil
}

// run executes script in a fresh VM with every currently visible tool
// injected as a JS function named after its namespaced tool fingerprint.
// Characters not allowed in a bare JS identifier are replaced by "_";
// the "__" separator is kept, so scripts call e.g.
// `github__create_issue({...})`.
func (c *ScriptCommand) run(ctx context.Context, script string) (string, error) {
	vm := goja.New()
	_ = vm.Set("console", scriptConsole())

	if c.caller != nil {
		tools, err := c.caller.ListTools(ctx)
		if err != nil {
			return "", fmt.Errorf("run_script: list tools: %w", err)
		}
		for _, t := range tools {
			if t.Name == "run_script" {
				continue // a script can't recursively invoke itself
			}
			fnName := jsIdentifier(t.Name)
			_ = vm.Set(fnName, c.callToolFn(ctx, t.Name))
		}
	}

	wrapped := "(() => {\n" + script + "\n})()"
	v, err := vm.RunString(wrapped)
	if err != nil {
		return fmt.Sprintf("script error: %s", err), nil
	}
	result := v.Export()
	if result == nil {
		return "<no output>", nil
	}
	return fmt.Sprintf("%v", result), nil
}

func (c *ScriptCommand) callToolFn(ctx context.Context, toolName string) func(args map[string]any) (string, error) {
	return func(args map[string]any) (string, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return "", err
		}
		result, err := c.caller.CallTool(ctx, toolName, raw)
		if err != nil {
			return "", err
		}
		return string(result), nil
	}
}

func jsIdentifier(namespacedTool string) string {
	out := make([]rune, 0, len(namespacedTool))
	for _, r := range namespacedTool {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// scriptConsole gives scripts a console.log the LLM host's transcript
// can surface for debugging, mirroring a real JS console without wiring
// actual stdout (goja scripts run server-side, per request).
func scriptConsole() map[string]any {
	logFn := func(args ...any) {
		fmt.Fprintln(os.Stderr, args...)
	}
	return map[string]any{
		"log":   logFn,
		"warn":  logFn,
		"error": logFn,
	}
}
