// Package transport moves whole frames over TCP stream sockets. It offers a
// blocking read/write style with optional bounded waits, a client dialer and a
// server listener.
package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout reports that a bounded wait expired. It is not fatal: the
	// connection stays open and the call may be retried.
	ErrTimeout = errors.New("transport: timeout")
	// ErrConnectionLost reports a failed or short receive or send. It is fatal
	// to that connection only; the caller must close it.
	ErrConnectionLost = errors.New("transport: connection lost")
	// ErrWouldBlock is returned by ReadNonBlocking when no data is queued.
	ErrWouldBlock = errors.New("transport: operation would block")
)

// DialError describes a failed client connect. Op is "resolve" when the host
// name could not be resolved and "connect" when no resolved address accepted
// the connection.
type DialError struct {
	Op   string
	Addr string
	Err  error
}

// Error implements error.
func (e *DialError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	return e.Err
}

func lost(err error) error {
	return fmt.Errorf("%w: %w", ErrConnectionLost, err)
}
