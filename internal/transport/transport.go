package transport

import (
	"context"
	"encoding/json"
)

// Transport is the shared interface every upstream connection kind
// implements (spec §4.E).
type Transport interface {
	Start(ctx context.Context) error
	Close() error
	Send(ctx context.Context, msg json.RawMessage) error
	SetProtocolVersion(v string)

	SessionID() string
	ProtocolVersion() string
	State() State

	OnMessage(fn func(msg json.RawMessage))
	OnError(fn func(err error))
	OnClose(fn func())
}

// Upgradable is implemented by transports that support atomically
// swapping their underlying connection kind (Streamable HTTP only,
// spec §4.E "Transport upgrade").
type Upgradable interface {
	UpgradeTransport(ctx context.Context, target Transport) error
}

// callbacks is embedded by each concrete transport to provide the three
// shared event hooks without repeating the bookkeeping.
type callbacks struct {
	onMessage func(msg json.RawMessage)
	onError   func(err error)
	onClose   func()
}

func (c *callbacks) OnMessage(fn func(msg json.RawMessage)) { c.onMessage = fn }
func (c *callbacks) OnError(fn func(err error))             { c.onError = fn }
func (c *callbacks) OnClose(fn func())                      { c.onClose = fn }

func (c *callbacks) emitMessage(msg json.RawMessage) {
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

func (c *callbacks) emitError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *callbacks) emitClose() {
	if c.onClose != nil {
		c.onClose()
	}
}
