package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// StreamableHTTPTransport issues one HTTP POST per outbound message,
// tracking the server-assigned Mcp-Session-Id and an optional resumption
// token, with DELETE for explicit session termination (spec §4.E).
// Grounded in internal/downstream/http_instance.go's doRPC/readSSEResponse.
type StreamableHTTPTransport struct {
	callbacks
	*machine

	url    string
	client *http.Client

	mu              sync.Mutex
	headers         http.Header
	sessionID       string
	resumptionToken string
	protoV          string
	finishAuthFn    func(ctx context.Context, code string) error
}

// SetFinishAuthFunc wires the callback FinishAuth delegates to, typically
// an authprovider.OAuth2AuthCodeProvider's CompleteFlow.
func (t *StreamableHTTPTransport) SetFinishAuthFunc(fn func(ctx context.Context, code string) error) {
	t.mu.Lock()
	t.finishAuthFn = fn
	t.mu.Unlock()
}

// FinishAuth completes an in-band OAuth2 authorization-code exchange
// triggered by a 401 response, delegating to the auth provider (spec
// §4.E).
func (t *StreamableHTTPTransport) FinishAuth(ctx context.Context, code string) error {
	t.mu.Lock()
	fn := t.finishAuthFn
	t.mu.Unlock()
	if fn == nil {
		return fmt.Errorf("streamable-http transport: no auth provider wired for finishAuth")
	}
	return fn(ctx, code)
}

func NewStreamableHTTPTransport(cfg Config, log *slog.Logger) *StreamableHTTPTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &StreamableHTTPTransport{
		machine: newMachine(cfg.Reconnect, log),
		url:     cfg.URL,
		client:  &http.Client{Timeout: timeout},
		headers: http.Header{},
	}
}

func (t *StreamableHTTPTransport) SetAuthHeaders(headers map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	t.headers = h
}

func (t *StreamableHTTPTransport) Start(ctx context.Context) error {
	already, err := t.beginStart()
	if err != nil || already {
		return err
	}
	t.markConnected()
	return nil
}

func (t *StreamableHTTPTransport) Send(ctx context.Context, msg json.RawMessage) error {
	if err := t.canSend(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(msg))
	if err != nil {
		return newTransportError(ErrKindConnect, true, "build POST: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	t.applyHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return newTransportError(ErrKindConnect, true, "POST: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Mcp-Session-Id"); v != "" {
		t.mu.Lock()
		t.sessionID = v
		t.mu.Unlock()
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return newTransportError(ErrKindAuth, true, "unauthorized")
	}

	isNotification := mcpwireIsNotification(msg)
	if isNotification {
		if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
			return nil
		}
		body, _ := io.ReadAll(resp.Body)
		return newTransportError(ErrKindProtocol, false, "notification failed (%d): %s", resp.StatusCode, body)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return newTransportError(ErrKindProtocol, false, "http %d: %s", resp.StatusCode, body)
	}

	ct := resp.Header.Get("Content-Type")
	var result json.RawMessage
	if strings.HasPrefix(ct, "text/event-stream") {
		result, err = t.readSSEResult(resp.Body)
	} else {
		result, err = io.ReadAll(resp.Body)
	}
	if err != nil {
		return newTransportError(ErrKindProtocol, true, "read response: %v", err)
	}
	t.emitMessage(result)
	return nil
}

func (t *StreamableHTTPTransport) readSSEResult(body io.Reader) (json.RawMessage, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if id, ok := strings.CutPrefix(line, "id: "); ok {
			t.mu.Lock()
			t.resumptionToken = id
			t.mu.Unlock()
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		return json.RawMessage(data), nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no result in event-stream response")
}

func (t *StreamableHTTPTransport) applyHeaders(req *http.Request) {
	t.mu.Lock()
	headers := t.headers
	sessionID := t.sessionID
	resumption := t.resumptionToken
	t.mu.Unlock()

	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	if resumption != "" {
		req.Header.Set("Last-Event-ID", resumption)
	}
}

// TerminateSession sends a DELETE to end the server-side session
// explicitly (spec §4.E).
func (t *StreamableHTTPTransport) TerminateSession(ctx context.Context) error {
	t.mu.Lock()
	sessionID := t.sessionID
	t.mu.Unlock()
	if sessionID == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.url, nil)
	if err != nil {
		return newTransportError(ErrKindConnect, true, "build DELETE: %v", err)
	}
	t.applyHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return newTransportError(ErrKindConnect, true, "DELETE: %v", err)
	}
	resp.Body.Close()

	t.mu.Lock()
	t.sessionID = ""
	t.mu.Unlock()
	return nil
}

func (t *StreamableHTTPTransport) Close() error {
	if !t.beginClose() {
		return nil
	}
	_ = t.TerminateSession(context.Background())
	t.markClosed()
	return nil
}

// UpgradeTransport swaps this transport for target, carrying over auth
// headers (spec §4.E "Transport upgrade"). The session id is not carried
// over: closing the old transport sends a DELETE that ends its session.
// Failure to close the old transport never blocks starting the new one.
func (t *StreamableHTTPTransport) UpgradeTransport(ctx context.Context, target Transport) error {
	if t.getState() == StateClosed {
		return ErrClosed
	}

	if setter, ok := target.(interface{ SetAuthHeaders(map[string]string) }); ok {
		t.mu.Lock()
		headers := map[string]string{}
		for k, vals := range t.headers {
			if len(vals) > 0 {
				headers[k] = vals[0]
			}
		}
		t.mu.Unlock()
		setter.SetAuthHeaders(headers)
	}

	if err := target.Start(ctx); err != nil {
		return fmt.Errorf("upgrade transport: start new transport: %w", err)
	}

	if err := t.Close(); err != nil {
		t.log.Warn("upgrade transport: error closing old transport", "error", err)
	}
	return nil
}

func (t *StreamableHTTPTransport) SetProtocolVersion(v string) {
	t.mu.Lock()
	t.protoV = v
	t.mu.Unlock()
}

func (t *StreamableHTTPTransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func (t *StreamableHTTPTransport) ProtocolVersion() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.protoV
}

// mcpwireIsNotification avoids importing internal/mcpwire here (transport
// stays protocol-agnostic); notifications are recognized the same way:
// no "id" field.
func mcpwireIsNotification(raw []byte) bool {
	var probe struct {
		ID *json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.ID == nil
}
