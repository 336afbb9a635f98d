package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMachineBeginStartTransitionsToConnecting(t *testing.T) {
	m := newMachine(ReconnectConfig{}, nil)
	already, err := m.beginStart()
	if err != nil || already {
		t.Fatalf("beginStart() = (%v, %v), want (false, nil)", already, err)
	}
	if m.getState() != StateConnecting {
		t.Fatalf("state = %v, want connecting", m.getState())
	}
}

func TestMachineBeginStartIdempotentWhileConnecting(t *testing.T) {
	m := newMachine(ReconnectConfig{}, nil)
	m.beginStart()
	already, err := m.beginStart()
	if err != nil || !already {
		t.Fatalf("beginStart() = (%v, %v), want (true, nil)", already, err)
	}
}

func TestMachineBeginStartFatalOnClosed(t *testing.T) {
	m := newMachine(ReconnectConfig{}, nil)
	m.beginStart()
	m.markConnected()
	m.beginClose()
	m.markClosed()

	_, err := m.beginStart()
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("beginStart() after close err = %v, want ErrClosed", err)
	}
}

func TestMachineBeginCloseIdempotent(t *testing.T) {
	m := newMachine(ReconnectConfig{}, nil)
	m.beginStart()
	m.markConnected()

	if !m.beginClose() {
		t.Fatal("first beginClose() = false, want true")
	}
	if m.beginClose() {
		t.Fatal("second beginClose() = true, want false (already closing)")
	}
}

func TestMachineCanSend(t *testing.T) {
	m := newMachine(ReconnectConfig{}, nil)
	if err := m.canSend(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("canSend() before start = %v, want ErrNotStarted", err)
	}

	m.beginStart()
	if err := m.canSend(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("canSend() while connecting = %v, want ErrNotStarted", err)
	}

	m.markConnected()
	if err := m.canSend(); err != nil {
		t.Fatalf("canSend() while connected = %v, want nil", err)
	}

	m.beginClose()
	if err := m.canSend(); !errors.Is(err, ErrClosed) {
		t.Fatalf("canSend() while closing = %v, want ErrClosed", err)
	}
}

func TestMachineScheduleReconnectSucceedsAfterRetries(t *testing.T) {
	m := newMachine(ReconnectConfig{MaxAttempts: 5, InitialDelayMs: 5, MaxDelayMs: 20, BackoffMultiplier: 2}, nil)
	m.beginStart()
	m.markConnected()

	var attempts int32
	done := make(chan struct{})
	m.scheduleReconnect(context.Background(), func(ctx context.Context) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return errors.New("not yet")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect did not succeed in time")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.getState() == StateConnected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state after reconnect = %v, want connected", m.getState())
}

func TestMachineScheduleReconnectExhausts(t *testing.T) {
	m := newMachine(ReconnectConfig{MaxAttempts: 2, InitialDelayMs: 1, MaxDelayMs: 5, BackoffMultiplier: 2}, nil)
	m.beginStart()
	m.markConnected()

	m.scheduleReconnect(context.Background(), func(ctx context.Context) error {
		return errors.New("always fails")
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.getState() == StateFailed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want failed after exhausting attempts", m.getState())
}

func TestMachineScheduleReconnectDisabled(t *testing.T) {
	m := newMachine(ReconnectConfig{MaxAttempts: 0}, nil)
	m.beginStart()
	m.markConnected()

	m.scheduleReconnect(context.Background(), func(ctx context.Context) error {
		t.Fatal("attemptFn should never run when reconnection is disabled")
		return nil
	})

	if m.getState() != StateFailed {
		t.Fatalf("state = %v, want failed immediately", m.getState())
	}
}
