package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// newTestStdioTransport wires up a transport backed by `cat`, which
// echoes every line written to stdin back out on stdout, standing in
// for a well-behaved MCP stdio server for framing purposes.
func newTestStdioTransport(t *testing.T) *StdioTransport {
	t.Helper()
	cfg := Config{Kind: KindStdio, Command: "cat"}
	return NewStdioTransport(cfg, nil)
}

func TestStdioTransportSendReceiveRoundTrip(t *testing.T) {
	tr := newTestStdioTransport(t)
	defer tr.Close()

	received := make(chan json.RawMessage, 1)
	tr.OnMessage(func(msg json.RawMessage) {
		received <- msg
	})

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	msg := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(msg) {
			t.Fatalf("received = %s, want %s", got, msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}
}

func TestStdioTransportStartIsIdempotent(t *testing.T) {
	tr := newTestStdioTransport(t)
	defer tr.Close()

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
}

func TestStdioTransportSendBeforeStartFails(t *testing.T) {
	tr := newTestStdioTransport(t)
	defer tr.Close()

	err := tr.Send(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("Send before Start should fail")
	}
}

func TestStdioTransportCloseIsIdempotentAndRejectsRestart(t *testing.T) {
	tr := newTestStdioTransport(t)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("Start after Close should return ErrClosed")
	}
}

func TestStdioTransportInvalidCommandFailsToStart(t *testing.T) {
	cfg := Config{Kind: KindStdio, Command: "definitely-not-a-real-binary-xyz"}
	tr := NewStdioTransport(cfg, nil)
	defer tr.Close()

	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("Start with a nonexistent binary should fail")
	}
}
