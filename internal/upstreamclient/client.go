// Package upstreamclient wraps a transport.Transport with MCP protocol
// framing (spec §4.F): it issues initialize and tools/list on start,
// caches the returned tool descriptors under the upstream's name,
// forwards tools/call verbatim, and invalidates its cache (without
// blocking the caller) when the upstream sends tools/list_changed.
package upstreamclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/revittco/mcplexer/internal/mcpwire"
	"github.com/revittco/mcplexer/internal/transport"
)

const defaultRequestTimeout = 30 * time.Second

// ProtocolVersion is the MCP protocol version this client negotiates.
const ProtocolVersion = "2024-11-05"

// pendingCall tracks an in-flight request awaiting its response.
type pendingCall struct {
	resp chan mcpwire.Response
}

// Client is the spec §4.F "Upstream Client": one transport plus the MCP
// request/response correlation, tool-descriptor cache, and
// tools/list_changed subscription layered on top of it.
type Client struct {
	name string
	t    transport.Transport
	log  *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall

	toolsMu sync.RWMutex
	tools   []mcpwire.Tool
	synced  bool // true once a tools/list has succeeded at least once

	onToolsChanged func(upstream string)
}

// New wraps t as an upstream named name. onToolsChanged, if non-nil, is
// invoked (off the transport's message-delivery goroutine is not
// guaranteed, so it must not block) whenever this client's tool cache is
// invalidated by a tools/list_changed notification, so the proxy
// multiplexer can recompute downstream visibility and fan out its own
// notification.
func New(name string, t transport.Transport, log *slog.Logger, onToolsChanged func(upstream string)) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		name:           name,
		t:              t,
		log:            log,
		pending:        make(map[string]*pendingCall),
		onToolsChanged: onToolsChanged,
	}
	t.OnMessage(c.handleMessage)
	t.OnError(func(err error) { log.Warn("upstream client transport error", "upstream", name, "error", err) })
	t.OnClose(func() { log.Info("upstream client transport closed", "upstream", name) })
	return c
}

// Name returns the upstream's configured name.
func (c *Client) Name() string { return c.name }

// Transport returns the underlying transport (for connection-state
// queries such as whether the upstream is currently connected).
func (c *Client) Transport() transport.Transport { return c.t }

// Start connects the transport, then performs the MCP handshake:
// initialize followed by an initial tools/list whose result seeds the
// cache. Initialize timeouts and protocol errors propagate as
// *transport.TransportError per spec §4.F's failure policy.
func (c *Client) Start(ctx context.Context) error {
	if err := c.t.Start(ctx); err != nil {
		return fmt.Errorf("upstreamclient %s: start transport: %w", c.name, err)
	}

	initResult, err := c.initialize(ctx)
	if err != nil {
		return fmt.Errorf("upstreamclient %s: initialize: %w", c.name, err)
	}
	c.t.SetProtocolVersion(initResult.ProtocolVersion)

	if err := c.refreshTools(ctx); err != nil {
		return fmt.Errorf("upstreamclient %s: initial tools/list: %w", c.name, err)
	}
	return nil
}

// Close closes the underlying transport and fails any pending calls.
func (c *Client) Close() error {
	c.mu.Lock()
	for id, p := range c.pending {
		close(p.resp)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return c.t.Close()
}

func (c *Client) initialize(ctx context.Context) (mcpwire.InitializeResult, error) {
	params := mcpwire.InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      mcpwire.ClientInfo{Name: "mcplexer", Version: "0.1.0"},
	}
	var result mcpwire.InitializeResult
	resp, err := c.call(ctx, "initialize", params)
	if err != nil {
		return result, err
	}
	if resp.Error != nil {
		return result, &transport.TransportError{Kind: transport.ErrKindProtocol, Message: resp.Error.Message}
	}
	if err := mcpwire.DecodeResult(resp.Result, &result); err != nil {
		return result, &transport.TransportError{Kind: transport.ErrKindProtocol, Message: err.Error()}
	}

	notif, err := mcpwire.NewNotification("notifications/initialized", nil)
	if err != nil {
		return result, err
	}
	b, err := json.Marshal(notif)
	if err != nil {
		return result, err
	}
	// Best-effort: some servers don't require the initialized
	// notification, but sending it is part of the standard handshake.
	_ = c.t.Send(ctx, b)

	return result, nil
}

// ListTools returns the cached tool descriptors, refreshing once first
// if Start hasn't populated the cache yet.
func (c *Client) ListTools(ctx context.Context) ([]mcpwire.Tool, error) {
	c.toolsMu.RLock()
	synced := c.synced
	tools := c.tools
	c.toolsMu.RUnlock()
	if synced {
		return tools, nil
	}
	if err := c.refreshTools(ctx); err != nil {
		return nil, err
	}
	c.toolsMu.RLock()
	defer c.toolsMu.RUnlock()
	return c.tools, nil
}

func (c *Client) refreshTools(ctx context.Context) error {
	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return &transport.TransportError{Kind: transport.ErrKindProtocol, Message: resp.Error.Message}
	}
	var result mcpwire.ListToolsResult
	if err := mcpwire.DecodeResult(resp.Result, &result); err != nil {
		return &transport.TransportError{Kind: transport.ErrKindProtocol, Message: err.Error()}
	}
	c.toolsMu.Lock()
	c.tools = result.Tools
	c.synced = true
	c.toolsMu.Unlock()
	return nil
}

// CallTool forwards a tools/call to the upstream and returns the raw
// result verbatim (spec §4.F: "returns the response verbatim").
func (c *Client) CallTool(ctx context.Context, toolName string, args json.RawMessage) (json.RawMessage, error) {
	resp, err := c.call(ctx, "tools/call", mcpwire.CallToolRequest{Name: toolName, Arguments: args})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// call sends a JSON-RPC request and blocks until its correlated response
// arrives, the context is cancelled, or the request times out.
func (c *Client) call(ctx context.Context, method string, params any) (mcpwire.Response, error) {
	if c.t.State() != transport.StateConnected {
		return mcpwire.Response{}, &transport.TransportError{Kind: transport.ErrKindClosed, Message: "upstream transport not connected"}
	}

	id := uuid.NewString()
	idRaw, _ := json.Marshal(id)
	req, err := mcpwire.NewRequest(idRaw, method, params)
	if err != nil {
		return mcpwire.Response{}, err
	}
	b, err := json.Marshal(req)
	if err != nil {
		return mcpwire.Response{}, err
	}

	p := &pendingCall{resp: make(chan mcpwire.Response, 1)}
	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	callCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	if err := c.t.Send(callCtx, b); err != nil {
		return mcpwire.Response{}, fmt.Errorf("upstreamclient %s: send %s: %w", c.name, method, err)
	}

	select {
	case resp, ok := <-p.resp:
		if !ok {
			return mcpwire.Response{}, &transport.TransportError{Kind: transport.ErrKindClosed, Message: "upstream client closed while awaiting response"}
		}
		return resp, nil
	case <-callCtx.Done():
		return mcpwire.Response{}, &transport.TransportError{Kind: transport.ErrKindTimeout, Message: fmt.Sprintf("%s timed out", method), Retryable: true}
	}
}

// handleMessage is the transport's OnMessage callback. It demultiplexes
// inbound frames: responses are routed to their waiting caller by id;
// the tools/list_changed notification triggers a non-blocking cache
// refresh whose failure does not poison the existing cache (spec §4.F).
func (c *Client) handleMessage(msg json.RawMessage) {
	if mcpwire.IsNotification(msg) {
		var n mcpwire.Notification
		if err := json.Unmarshal(msg, &n); err != nil {
			return
		}
		if n.Method == mcpwire.MethodToolsListChanged {
			c.toolsMu.Lock()
			c.synced = false
			c.toolsMu.Unlock()
			go c.notifyToolsChanged()
		}
		return
	}

	var resp mcpwire.Response
	if err := json.Unmarshal(msg, &resp); err != nil {
		c.log.Warn("upstream client: malformed response", "upstream", c.name, "error", err)
		return
	}
	var id string
	if err := json.Unmarshal(resp.ID, &id); err != nil {
		return
	}

	c.mu.Lock()
	p, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case p.resp <- resp:
	default:
	}
}

// notifyToolsChanged refreshes the tool cache in the background and
// informs the owning multiplexer regardless of outcome, so it can
// recompute visible tools and fan out its own notification; a failed
// refresh just leaves synced=false so the next ListTools call retries.
func (c *Client) notifyToolsChanged() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	defer cancel()
	if err := c.refreshTools(ctx); err != nil {
		c.log.Warn("upstream client: tools/list refresh after list_changed failed", "upstream", c.name, "error", err)
	}
	if c.onToolsChanged != nil {
		c.onToolsChanged(c.name)
	}
}

// IsConnected reports whether the underlying transport is currently
// connected.
func (c *Client) IsConnected() bool {
	return c.t.State() == transport.StateConnected
}
