// Package transport implements the four upstream MCP connection kinds
// (stdio, SSE, WebSocket, Streamable HTTP) behind one shared interface,
// state machine, and reconnection policy (spec §4.D/§4.E/§5).
package transport

import "fmt"

// State is a transport's lifecycle state (spec §4.E).
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by start() on a transport that has already been
// closed (spec §4.E: "fatal error... cannot be restarted").
var ErrClosed = fmt.Errorf("transport is closed and cannot be restarted")

// ErrNotStarted is returned by send() when the transport isn't connected.
var ErrNotStarted = fmt.Errorf("transport not started")
