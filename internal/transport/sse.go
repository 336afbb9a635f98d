package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// SSETransport opens a long-lived GET with Accept: text/event-stream for
// inbound messages and POSTs outbound messages to the same URL, per
// spec §4.E. Grounded in internal/downstream/http_instance.go's
// POST-per-request pattern plus its bufio.Scanner SSE framing.
type SSETransport struct {
	callbacks
	*machine

	url    string
	client *http.Client

	mu      sync.Mutex
	headers http.Header
	sessID  string
	protoV  string
	cancel  context.CancelFunc
}

func NewSSETransport(cfg Config, log *slog.Logger) *SSETransport {
	return &SSETransport{
		machine: newMachine(cfg.Reconnect, log),
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		headers: http.Header{},
	}
}

// SetAuthHeaders attaches the headers an AuthProvider produced to every
// GET and POST (spec §4.E: "attached to both the GET and every POST").
func (t *SSETransport) SetAuthHeaders(headers map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	t.headers = h
}

func (t *SSETransport) Start(ctx context.Context) error {
	already, err := t.beginStart()
	if err != nil || already {
		return err
	}
	return t.dial(ctx)
}

func (t *SSETransport) dial(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.url, nil)
	if err != nil {
		cancel()
		return newTransportError(ErrKindConnect, true, "build GET: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	t.applyHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return newTransportError(ErrKindConnect, true, "GET event-stream: %v", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		cancel()
		return newTransportError(ErrKindAuth, true, "unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return newTransportError(ErrKindConnect, true, "GET event-stream: http %d", resp.StatusCode)
	}

	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go t.readLoop(resp.Body)
	t.markConnected()
	return nil
}

func (t *SSETransport) readLoop(body io.ReadCloser) {
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
		if data == "" {
			continue
		}
		t.emitMessage(json.RawMessage(data))
	}

	if t.getState() == StateClosing || t.getState() == StateClosed {
		return
	}
	if err := scanner.Err(); err != nil {
		t.emitError(newTransportError(ErrKindProtocol, true, "event-stream read: %v", err))
	}
	t.emitClose()
	t.scheduleReconnect(context.Background(), t.dial)
}

func (t *SSETransport) Send(ctx context.Context, msg json.RawMessage) error {
	if err := t.canSend(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(msg))
	if err != nil {
		return newTransportError(ErrKindConnect, true, "build POST: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.applyHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return newTransportError(ErrKindConnect, true, "POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return newTransportError(ErrKindAuth, true, "unauthorized")
	}
	if resp.StatusCode >= 300 {
		return newTransportError(ErrKindProtocol, false, "POST: http %d", resp.StatusCode)
	}
	return nil
}

func (t *SSETransport) applyHeaders(req *http.Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, vals := range t.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
}

func (t *SSETransport) Close() error {
	if !t.beginClose() {
		return nil
	}
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.markClosed()
	return nil
}

func (t *SSETransport) SetProtocolVersion(v string) {
	t.mu.Lock()
	t.protoV = v
	t.mu.Unlock()
}

func (t *SSETransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessID
}

func (t *SSETransport) ProtocolVersion() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.protoV
}
