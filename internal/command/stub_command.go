package command

import (
	"context"
	"encoding/json"
	"fmt"
)

// StubCommand is a placeholder Command for tool surfaces spec §1
// explicitly scopes out: "tool implementations that plug into the core
// via a Command interface; their debugger internals and symbol
// formatters are not specified here." It contributes a single tool under
// its own name, declares a dependency on one of a set of upstream
// aliases, and reports ExecuteToolViaMCP as not implemented rather than
// silently succeeding, so a caller can tell a stub apart from a working
// command.
type StubCommand struct {
	name        string
	description string
	dep         ServerDependency
}

// NewStubCommand builds a StubCommand named name, depending on any one
// of aliases being connected. ensureToolsExposed is passed straight
// through to the ServerDependency (spec §4.G: exposing "{alias}__*" once
// the dependency resolves connected).
func NewStubCommand(name, description string, aliases []string, ensureToolsExposed bool) *StubCommand {
	return &StubCommand{
		name:        name,
		description: description,
		dep: ServerDependency{
			Aliases:            aliases,
			EnsureToolsExposed: ensureToolsExposed,
		},
	}
}

func (c *StubCommand) Name() string { return c.name }

func (c *StubCommand) Description() string { return c.description }

func (c *StubCommand) GetMCPDefinitions() []Tool {
	return []Tool{{
		Name:        c.name,
		Description: c.description,
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}}
}

func (c *StubCommand) ExecuteToolViaMCP(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	if name != c.name {
		return Result{}, fmt.Errorf("%s: unknown tool %q", c.name, name)
	}
	return ErrorResult(fmt.Sprintf("%s: not implemented", c.name)), nil
}

func (c *StubCommand) ExecuteViaCLI(ctx context.Context, args []string) error {
	return fmt.Errorf("%s: not implemented", c.name)
}

func (c *StubCommand) GetServerDependencies() []ServerDependency {
	return []ServerDependency{c.dep}
}
