// Package command hosts the first-party "commands" (spec §4.I): units
// that contribute their own tools to the proxy's core tool set and can
// declare a dependency on one or more upstream servers being configured
// or connected.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/revittco/mcplexer/internal/proxy"
)

// Tool is the MCP tool descriptor a command contributes, matching the
// shape the gateway's own protocol.Tool/gateway.Tool types serialize to.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Result is the MCP tools/call result a command produces.
type Result struct {
	Content []ResultContent `json:"content"`
	IsError bool            `json:"isError,omitempty"`
}

// ResultContent is a single content block of a tool result.
type ResultContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextResult builds a single-block text Result.
func TextResult(text string) Result {
	return Result{Content: []ResultContent{{Type: "text", Text: text}}}
}

// ErrorResult builds a single-block text Result with IsError set.
func ErrorResult(text string) Result {
	return Result{Content: []ResultContent{{Type: "text", Text: text}}, IsError: true}
}

// ServerDependency declares that a command's tool needs one of a set of
// upstream server names (aliases) to be available. EnsureToolsExposed, if
// set, causes a successful RequireServerConnected check to add
// "{alias}__*" to the dynamic enable set (spec §4.G).
type ServerDependency struct {
	Aliases            []string
	EnsureToolsExposed bool
}

// DependencyStatus is the result of a configured/connected query.
type DependencyStatus struct {
	Configured bool
}

// Command is the capability set spec §4.I requires of every first-party
// command: it must describe its own MCP tools, execute them, optionally
// run standalone from a CLI, and optionally declare upstream dependencies.
type Command interface {
	Name() string
	Description() string
	GetMCPDefinitions() []Tool
	ExecuteToolViaMCP(ctx context.Context, name string, args json.RawMessage) (Result, error)
	ExecuteViaCLI(ctx context.Context, args []string) error
}

// DependencyAware is implemented by commands that declare upstream
// server dependencies. Not every Command needs one, so it is a separate,
// optional interface rather than a required method (spec §4.I:
// "getServerDependencies?").
type DependencyAware interface {
	GetServerDependencies() []ServerDependency
}

// ConfiguredChecker answers whether an upstream server name appears in
// the active ProxyConfig, independent of whether it is currently
// connected.
type ConfiguredChecker interface {
	IsConfigured(name string) bool
}

// ConnectedChecker answers whether an upstream server is currently
// connected (its transport/upstream client is live).
type ConnectedChecker interface {
	IsConnected(name string) bool
}

// Registry composes commands' tool definitions into the core tool set
// and routes tools/call to the owning command. It also answers the two
// dependency queries spec §4.G exposes to commands at invocation time.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	order    []string

	configured ConfiguredChecker
	connected  ConnectedChecker
	enableSet  *proxy.EnableSet
}

// NewRegistry constructs a Registry. configured/connected/enableSet may
// be nil. A nil configured or connected checker makes
// RequireServerConfigured or RequireServerConnected (respectively) return
// nil for a non-empty alias list, matching spec §4.G's "returns
// null/absent when no proxy context is available"; a nil enableSet only
// means ensureToolsExposed adds nothing.
func NewRegistry(configured ConfiguredChecker, connected ConnectedChecker, enableSet *proxy.EnableSet) *Registry {
	return &Registry{
		commands:   make(map[string]Command),
		configured: configured,
		connected:  connected,
		enableSet:  enableSet,
	}
}

// Register adds a command to the registry. Registration order is
// preserved for ToolDefinitions output.
func (r *Registry) Register(c Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.Name()
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = c
}

// ToolDefinitions returns every registered command's tool list, in
// registration order, pre-visibility-filtering.
func (r *Registry) ToolDefinitions() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, name := range r.order {
		out = append(out, r.commands[name].GetMCPDefinitions()...)
	}
	return out
}

// toolOwner finds the command that declared a tool with the given name.
func (r *Registry) toolOwner(toolName string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		c := r.commands[name]
		for _, t := range c.GetMCPDefinitions() {
			if t.Name == toolName {
				return c, true
			}
		}
	}
	return nil, false
}

// Dispatch routes a tools/call for toolName to its owning command.
func (r *Registry) Dispatch(ctx context.Context, toolName string, args json.RawMessage) (Result, error) {
	c, ok := r.toolOwner(toolName)
	if !ok {
		return Result{}, fmt.Errorf("command: no registered tool %q", toolName)
	}
	return c.ExecuteToolViaMCP(ctx, toolName, args)
}

// RequireServerConfigured implements spec §4.G: true if any alias in dep
// names an upstream defined in the active ProxyConfig, regardless of
// connection state. Returns nil if no proxy context is wired, or
// {Configured:false} immediately for an empty alias list without
// performing any lookup.
func (r *Registry) RequireServerConfigured(dep ServerDependency) *DependencyStatus {
	if len(dep.Aliases) == 0 {
		return &DependencyStatus{Configured: false}
	}
	if r.configured == nil {
		return nil
	}
	for _, alias := range dep.Aliases {
		if r.configured.IsConfigured(alias) {
			return &DependencyStatus{Configured: true}
		}
	}
	return &DependencyStatus{Configured: false}
}

// RequireServerConnected implements spec §4.G: true iff an alias is
// currently connected (case-sensitive comparison). When a match is
// connected and dep.EnsureToolsExposed is set, "{alias}__*" is added to
// the dynamic enable set, attributed to SourceServerDependency.
func (r *Registry) RequireServerConnected(dep ServerDependency) *DependencyStatus {
	if len(dep.Aliases) == 0 {
		return &DependencyStatus{Configured: false}
	}
	if r.connected == nil {
		return nil
	}
	for _, alias := range dep.Aliases {
		if r.connected.IsConnected(alias) {
			if dep.EnsureToolsExposed && r.enableSet != nil {
				r.enableSet.Add(alias+"__*", proxy.SourceServerDependency)
			}
			return &DependencyStatus{Configured: true}
		}
	}
	return &DependencyStatus{Configured: false}
}
