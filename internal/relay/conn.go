package relay

import "errors"

var (
	ErrSendBufferFull  = errors.New("send buffer full")
	ErrConnClosed      = errors.New("connection closed")
	ErrNotAttached     = errors.New("connection not attached")
	ErrAlreadyAttached = errors.New("connection already attached")
	ErrHubFull         = errors.New("max clients reached")
	ErrHubStopped      = errors.New("hub stopped")
	ErrCommandTimedOut = errors.New("hub command timed out")
)

// Conn is one live duplex channel to a viewer, owned by the Hub between
// Attach and Detach.
//
// Send must not block: it either enqueues data for delivery or fails with
// ErrSendBufferFull / ErrConnClosed. Close must be idempotent.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// reasonCloser is implemented by connections that can tell the peer why
// they are being closed.
type reasonCloser interface {
	CloseWithReason(reason string) error
}
