// Package multiplexer implements the spec §4.G "Proxy Multiplexer": it
// owns N upstream clients, namespaces their tools as "{server}__{tool}",
// applies visibility filtering and the dynamic enable set, connects
// upstreams on demand, and coalesces tools/list_changed fan-out to the
// downstream session.
package multiplexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/revittco/mcplexer/internal/authprovider"
	"github.com/revittco/mcplexer/internal/command"
	"github.com/revittco/mcplexer/internal/mcpwire"
	"github.com/revittco/mcplexer/internal/proxy"
	"github.com/revittco/mcplexer/internal/transport"
	"github.com/revittco/mcplexer/internal/upstreamclient"
)

// coalesceWindow bounds how often a burst of upstream tools/list_changed
// notifications collapses into a single downstream notification (spec
// §4.G: "Coalesce bursts within a small window (≈50 ms)").
const coalesceWindow = 50 * time.Millisecond

// UpstreamSpec is one configured upstream server: its namespacing name,
// transport configuration, and (optional) outbound auth provider.
type UpstreamSpec struct {
	Name      string
	Transport transport.Config
	Auth      authprovider.Provider
}

// separator joins an upstream name and bare tool name into the
// namespaced tool fingerprint the downstream sees (spec §3 ToolFingerprint).
const separator = "__"

// Fingerprint builds the namespaced tool name for (upstream, tool).
func Fingerprint(upstream, tool string) string {
	return upstream + separator + tool
}

// SplitFingerprint reverses Fingerprint. It splits on the first
// occurrence of the separator, since upstream names never contain it
// (spec §3: "name is unique within the proxy configuration").
func SplitFingerprint(namespaced string) (upstream, tool string, ok bool) {
	idx := strings.Index(namespaced, separator)
	if idx < 0 {
		return "", "", false
	}
	return namespaced[:idx], namespaced[idx+len(separator):], true
}

// Multiplexer owns the configured upstream set and answers the
// downstream-facing tools/list and tools/call operations.
type Multiplexer struct {
	factory    *transport.Factory
	log        *slog.Logger
	visibility proxy.Config
	enableSet  *proxy.EnableSet
	commands   *command.Registry

	mu      sync.RWMutex
	specs   map[string]UpstreamSpec
	clients map[string]*upstreamclient.Client

	notifyMu    sync.Mutex
	notifyTimer *time.Timer

	// Bus fans tools-changed events out to every subscribed downstream
	// session (SSE stream or WebSocket connection).
	Bus *Bus
}

// New constructs a Multiplexer over the given upstream specs. factory
// builds/memoizes transports (spec §4.D); visibility/enableSet drive
// spec §4.G's tool-visibility decision; commands may be nil if no
// first-party commands are registered.
func New(specs []UpstreamSpec, factory *transport.Factory, visibility proxy.Config, enableSet *proxy.EnableSet, commands *command.Registry, log *slog.Logger) *Multiplexer {
	if log == nil {
		log = slog.Default()
	}
	m := &Multiplexer{
		factory:    factory,
		log:        log,
		visibility: visibility,
		enableSet:  enableSet,
		commands:   commands,
		specs:      make(map[string]UpstreamSpec, len(specs)),
		clients:    make(map[string]*upstreamclient.Client, len(specs)),
		Bus:        NewBus(),
	}
	for _, s := range specs {
		m.specs[s.Name] = s
	}
	return m
}

// SetCommands attaches the command registry after construction — useful
// when the registry itself needs this Multiplexer as its
// ConfiguredChecker/ConnectedChecker (command.NewRegistry(mux, mux, ...))
// and so can't be built before the Multiplexer exists.
func (m *Multiplexer) SetCommands(commands *command.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = commands
}

// scheduleNotify debounces a burst of upstream tools/list_changed
// notifications into a single Bus publish within coalesceWindow (spec
// §4.G).
func (m *Multiplexer) scheduleNotify(string) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if m.notifyTimer != nil {
		return // a coalesced fire is already scheduled
	}
	m.notifyTimer = time.AfterFunc(coalesceWindow, func() {
		m.notifyMu.Lock()
		m.notifyTimer = nil
		m.notifyMu.Unlock()
		m.Bus.Publish(ToolsChangedEvent{})
	})
}

// IsConfigured implements command.ConfiguredChecker: true if name is a
// configured upstream, regardless of connection state.
func (m *Multiplexer) IsConfigured(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.specs[name]
	return ok
}

// IsConnected implements command.ConnectedChecker: true iff the upstream
// has a live client whose transport is currently connected.
func (m *Multiplexer) IsConnected(name string) bool {
	m.mu.RLock()
	c, ok := m.clients[name]
	m.mu.RUnlock()
	return ok && c.IsConnected()
}

// connect returns the client for name, connecting it on demand if it
// isn't already started. Concurrent callers for the same not-yet-started
// upstream each attempt Start; upstreamclient.New/Start is idempotent to
// call against a fresh transport, so the effect is just duplicated
// connection attempts rather than a correctness issue — acceptable for
// the control-plane cost of connecting an individual upstream.
func (m *Multiplexer) connect(ctx context.Context, name string) (*upstreamclient.Client, error) {
	m.mu.RLock()
	if c, ok := m.clients[name]; ok && c.IsConnected() {
		m.mu.RUnlock()
		return c, nil
	}
	spec, ok := m.specs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("multiplexer: unknown upstream %q", name)
	}

	authIdentity, storageIdentity := "", ""
	if spec.Auth != nil {
		authIdentity = fmt.Sprintf("%p", spec.Auth)
	}
	tr, err := m.factory.Create(spec.Transport, authIdentity, storageIdentity)
	if err != nil {
		return nil, fmt.Errorf("multiplexer: create transport for %q: %w", name, err)
	}

	if spec.Auth != nil {
		headers, err := spec.Auth.GetHeaders(ctx)
		if err != nil {
			return nil, fmt.Errorf("multiplexer: auth headers for %q: %w", name, err)
		}
		if setter, ok := tr.(interface{ SetAuthHeaders(map[string]string) }); ok {
			setter.SetAuthHeaders(headers)
		}
	}

	client := upstreamclient.New(name, tr, m.log, m.scheduleNotify)
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("multiplexer: connect %q: %w", name, err)
	}

	m.mu.Lock()
	m.clients[name] = client
	m.mu.Unlock()

	m.scheduleNotify(name)
	return client, nil
}

// ListTools returns the namespaced tool descriptors currently visible to
// the downstream, across every upstream that is already connected, plus
// the registered commands' core tools. Upstreams that are configured but
// not yet connected are not implicitly connected just to list their
// tools; they appear once something (a call, or an explicit connect)
// brings them up, matching spec §4.G's "connect on demand" being scoped
// to dispatch, not enumeration.
func (m *Multiplexer) ListTools(ctx context.Context) ([]mcpwire.Tool, error) {
	var out []mcpwire.Tool

	m.mu.RLock()
	clients := make([]*upstreamclient.Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		tools, err := c.ListTools(ctx)
		if err != nil {
			m.log.Warn("multiplexer: list tools failed", "upstream", c.Name(), "error", err)
			continue
		}
		for _, t := range tools {
			fp := Fingerprint(c.Name(), t.Name)
			if !proxy.IsVisible(fp, m.visibility, m.enableSet) {
				continue
			}
			out = append(out, mcpwire.Tool{Name: fp, Description: t.Description, InputSchema: t.InputSchema})
		}
	}

	if m.commands != nil {
		for _, t := range m.commands.ToolDefinitions() {
			if !proxy.IsCoreToolVisible(t.Name, m.visibility) {
				continue
			}
			out = append(out, mcpwire.Tool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}
	}

	return out, nil
}

// CallTool dispatches a tools/call for a namespaced tool name. Core
// (command-owned) tool names never contain the upstream separator in
// the place an upstream-routed call would, so a fingerprint that
// doesn't match any configured upstream falls through to the command
// registry; an unrecognized name either way is a NotFoundError-shaped
// MCP error result rather than a transport exception (spec §4.G).
func (m *Multiplexer) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	if upstream, tool, ok := SplitFingerprint(name); ok && m.IsConfigured(upstream) {
		client, err := m.connect(ctx, upstream)
		if err != nil {
			return mcpwire.CallToolResultJSON(fmt.Sprintf("upstream %q unavailable: %v", upstream, err)), nil
		}
		result, err := client.CallTool(ctx, tool, args)
		if err != nil {
			return mcpwire.CallToolResultJSON(fmt.Sprintf("tool call failed: %v", err)), nil
		}
		return result, nil
	}

	if m.commands != nil {
		result, err := m.commands.Dispatch(ctx, name, args)
		if err != nil {
			return mcpwire.CallToolResultJSON(fmt.Sprintf("unknown tool %q", name)), nil
		}
		b, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	return mcpwire.CallToolResultJSON(fmt.Sprintf("unknown tool %q", name)), nil
}

// Close shuts down every connected upstream client, leaves-first (spec
// §3: "close transports -> dispose auth providers -> clear stores" —
// disposing auth providers/stores is the caller's responsibility, since
// this package doesn't own them; it owns only the transports/clients).
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	clients := make([]*upstreamclient.Client, 0, len(m.clients))
	for name, c := range m.clients {
		clients = append(clients, c)
		delete(m.clients, name)
	}
	m.mu.Unlock()

	var firstErr error
	for _, c := range clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
