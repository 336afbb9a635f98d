package transport

import "fmt"

// ErrorKind classifies a TransportError per spec §7.
type ErrorKind string

const (
	ErrKindConnect  ErrorKind = "connect"
	ErrKindProtocol ErrorKind = "protocol"
	ErrKindTimeout  ErrorKind = "timeout"
	ErrKindAuth     ErrorKind = "auth"
	ErrKindClosed   ErrorKind = "closed"
)

// TransportError is the TransportError kind from spec §7.
type TransportError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %s", e.Kind, e.Message)
}

func newTransportError(kind ErrorKind, retryable bool, format string, args ...any) *TransportError {
	return &TransportError{Kind: kind, Message: fmt.Sprintf(format, args...), Retryable: retryable}
}
