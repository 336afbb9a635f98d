package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStreamableHTTPTransportSendJSONResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Mcp-Session-Id", "sess-123")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := Config{Kind: KindStreamableHTTP, URL: srv.URL + "/mcp"}
	tr := NewStreamableHTTPTransport(cfg, nil)
	defer tr.Close()

	var gotMsg json.RawMessage
	tr.OnMessage(func(msg json.RawMessage) { gotMsg = msg })

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Send(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotMsg == nil {
		t.Fatal("expected OnMessage to fire with the response body")
	}
	if tr.SessionID() != "sess-123" {
		t.Fatalf("SessionID() = %q, want sess-123", tr.SessionID())
	}
}

func TestStreamableHTTPTransportSendSSEResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("id: evt-1\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := Config{Kind: KindStreamableHTTP, URL: srv.URL + "/mcp"}
	tr := NewStreamableHTTPTransport(cfg, nil)
	defer tr.Close()

	received := make(chan json.RawMessage, 1)
	tr.OnMessage(func(msg json.RawMessage) { received <- msg })

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Send(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-received:
	default:
		t.Fatal("expected OnMessage to fire synchronously from the SSE response body")
	}
	if tr.resumptionToken != "evt-1" {
		t.Fatalf("resumptionToken = %q, want evt-1", tr.resumptionToken)
	}
}

func TestStreamableHTTPTransportNotificationAccepted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := Config{Kind: KindStreamableHTTP, URL: srv.URL + "/mcp"}
	tr := NewStreamableHTTPTransport(cfg, nil)
	defer tr.Close()

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	notification := json.RawMessage(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if err := tr.Send(context.Background(), notification); err != nil {
		t.Fatalf("Send notification: %v", err)
	}
}

func TestStreamableHTTPTransportUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := Config{Kind: KindStreamableHTTP, URL: srv.URL + "/mcp"}
	tr := NewStreamableHTTPTransport(cfg, nil)
	defer tr.Close()

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := tr.Send(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err == nil {
		t.Fatal("Send against a 401 endpoint should fail")
	}
}

func TestStreamableHTTPTransportTerminateSessionSendsDelete(t *testing.T) {
	var sawDelete bool
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Header().Set("Mcp-Session-Id", "sess-abc")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
		case http.MethodDelete:
			sawDelete = true
			w.WriteHeader(http.StatusOK)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := Config{Kind: KindStreamableHTTP, URL: srv.URL + "/mcp"}
	tr := NewStreamableHTTPTransport(cfg, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Send(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := tr.TerminateSession(context.Background()); err != nil {
		t.Fatalf("TerminateSession: %v", err)
	}
	if !sawDelete {
		t.Fatal("expected a DELETE request to be sent")
	}
	if tr.SessionID() != "" {
		t.Fatal("SessionID should be cleared after termination")
	}
}

func TestStreamableHTTPTransportUpgradeCarriesHeadersAndCloses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := Config{Kind: KindStreamableHTTP, URL: srv.URL + "/mcp"}
	oldTr := NewStreamableHTTPTransport(cfg, nil)
	oldTr.SetAuthHeaders(map[string]string{"Authorization": "Bearer old"})
	if err := oldTr.Start(context.Background()); err != nil {
		t.Fatalf("Start old: %v", err)
	}

	newTr := NewStreamableHTTPTransport(cfg, nil)
	if err := oldTr.UpgradeTransport(context.Background(), newTr); err != nil {
		t.Fatalf("UpgradeTransport: %v", err)
	}

	if oldTr.State() != StateClosed {
		t.Fatalf("old transport state = %v, want closed", oldTr.State())
	}
	if newTr.State() != StateConnected {
		t.Fatalf("new transport state = %v, want connected", newTr.State())
	}
}

func TestStreamableHTTPTransportFinishAuthDelegates(t *testing.T) {
	cfg := Config{Kind: KindStreamableHTTP, URL: "http://example.invalid/mcp"}
	tr := NewStreamableHTTPTransport(cfg, nil)
	defer tr.Close()

	var gotCode string
	tr.SetFinishAuthFunc(func(ctx context.Context, code string) error {
		gotCode = code
		return nil
	})

	if err := tr.FinishAuth(context.Background(), "auth-code-xyz"); err != nil {
		t.Fatalf("FinishAuth: %v", err)
	}
	if gotCode != "auth-code-xyz" {
		t.Fatalf("gotCode = %q, want auth-code-xyz", gotCode)
	}
}

func TestStreamableHTTPTransportFinishAuthWithoutProviderFails(t *testing.T) {
	cfg := Config{Kind: KindStreamableHTTP, URL: "http://example.invalid/mcp"}
	tr := NewStreamableHTTPTransport(cfg, nil)
	defer tr.Close()

	if err := tr.FinishAuth(context.Background(), "code"); err == nil {
		t.Fatal("FinishAuth without a wired provider should fail")
	}
}
