package transport

import (
	"context"
	"log/slog"
	"sync"
)

// machine is the shared lifecycle state machine every concrete transport
// embeds (spec §4.E): idle -> connecting -> connected -> reconnecting ->
// failed/closed, plus the closing/closed terminal pair.
type machine struct {
	mu    sync.Mutex
	state State

	policy *reconnectPolicy
	log    *slog.Logger

	reconnectCancel context.CancelFunc
}

func newMachine(reconnect ReconnectConfig, log *slog.Logger) *machine {
	if log == nil {
		log = slog.Default()
	}
	return &machine{
		state:  StateIdle,
		policy: newReconnectPolicy(reconnect),
		log:    log,
	}
}

func (m *machine) getState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// State implements Transport's State() accessor.
func (m *machine) State() State { return m.getState() }

func (m *machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// beginStart validates the start() precondition (spec §4.E: fatal on
// closed, idempotent otherwise) and transitions to connecting.
func (m *machine) beginStart() (alreadyStarting bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateClosed:
		return false, ErrClosed
	case StateConnecting, StateConnected, StateReconnecting:
		return true, nil
	}
	m.state = StateConnecting
	return false, nil
}

func (m *machine) markConnected() {
	m.mu.Lock()
	m.state = StateConnected
	m.mu.Unlock()
	m.policy.reset()
}

// beginClose validates close()'s idempotency and transitions to closing;
// returns false if the transport was already closed/closing.
func (m *machine) beginClose() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed || m.state == StateClosing {
		return false
	}
	if m.reconnectCancel != nil {
		m.reconnectCancel()
	}
	m.state = StateClosing
	return true
}

func (m *machine) markClosed() {
	m.mu.Lock()
	m.state = StateClosed
	m.mu.Unlock()
}

// canSend reports whether send() is currently permitted (spec §4.E:
// state must be connected).
func (m *machine) canSend() error {
	switch m.getState() {
	case StateConnected:
		return nil
	case StateClosed, StateClosing:
		return ErrClosed
	default:
		return ErrNotStarted
	}
}

// scheduleReconnect runs attemptFn with backoff delays until it succeeds,
// the policy is exhausted, or ctx is canceled. attemptFn should dial and
// return nil on success. Reconnection never replays protocol state — the
// caller (upstream client) re-sends initialize and re-subscribes.
func (m *machine) scheduleReconnect(ctx context.Context, attemptFn func(ctx context.Context) error) {
	if m.policy.disabled() {
		m.setState(StateFailed)
		return
	}

	reconnectCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.reconnectCancel = cancel
	m.state = StateReconnecting
	m.mu.Unlock()

	go func() {
		defer cancel()
		for attempt := 1; ; attempt++ {
			if m.policy.exhausted(attempt) {
				m.setState(StateFailed)
				return
			}
			if err := m.policy.wait(reconnectCtx); err != nil {
				return // canceled by Close
			}
			if reconnectCtx.Err() != nil {
				return
			}
			if err := attemptFn(reconnectCtx); err != nil {
				m.log.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
				continue
			}
			m.markConnected()
			return
		}
	}()
}
