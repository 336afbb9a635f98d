package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport dials an upgrade request carrying auth headers,
// then exchanges JSON-RPC messages as text frames (spec §4.E: "auth
// headers are placed in the upgrade request only").
type WebSocketTransport struct {
	callbacks
	*machine

	url     string
	headers http.Header
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	sessID string
	protoV string
}

func NewWebSocketTransport(cfg Config, log *slog.Logger) *WebSocketTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebSocketTransport{
		machine: newMachine(cfg.Reconnect, log),
		url:     cfg.URL,
		headers: http.Header{},
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
	}
}

func (t *WebSocketTransport) SetAuthHeaders(headers map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	t.headers = h
}

func (t *WebSocketTransport) Start(ctx context.Context) error {
	already, err := t.beginStart()
	if err != nil || already {
		return err
	}
	return t.dial(ctx)
}

func (t *WebSocketTransport) dial(ctx context.Context) error {
	t.mu.Lock()
	headers := t.headers.Clone()
	t.mu.Unlock()

	conn, resp, err := t.dialer.DialContext(ctx, t.url, headers)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return newTransportError(ErrKindAuth, true, "unauthorized")
		}
		return newTransportError(ErrKindConnect, true, "dial: %v", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	t.markConnected()
	return nil
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		t.emitMessage(json.RawMessage(data))
	}

	if t.getState() == StateClosing || t.getState() == StateClosed {
		return
	}
	t.emitClose()
	t.scheduleReconnect(context.Background(), t.dial)
}

func (t *WebSocketTransport) Send(ctx context.Context, msg json.RawMessage) error {
	if err := t.canSend(); err != nil {
		return err
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotStarted
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return newTransportError(ErrKindConnect, true, "write: %v", err)
	}
	return nil
}

func (t *WebSocketTransport) Close() error {
	if !t.beginClose() {
		return nil
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	t.markClosed()
	return nil
}

func (t *WebSocketTransport) SetProtocolVersion(v string) {
	t.mu.Lock()
	t.protoV = v
	t.mu.Unlock()
}

func (t *WebSocketTransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessID
}

func (t *WebSocketTransport) ProtocolVersion() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.protoV
}
