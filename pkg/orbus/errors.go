package orbus

import (
	"errors"
	"fmt"
)

var (
	// ErrFraming indicates a malformed or truncated frame.
	ErrFraming = errors.New("framing error")
	// ErrBufferFull indicates the batch doesn't fit into one frame.
	ErrBufferFull = errors.New("buffer full")
	// ErrTimeout indicates no reply was received within the round-trip window.
	ErrTimeout = errors.New("reply timeout")
	// ErrEmpty indicates a zero-length reply.
	ErrEmpty = errors.New("empty reply")
	// ErrDuplicateRegistration indicates a handler is already bound to the category.
	ErrDuplicateRegistration = errors.New("duplicate registration")
	// ErrReservedCategory indicates the category can't be bound to a handler.
	ErrReservedCategory = errors.New("reserved category")
	// ErrNotOpen indicates the connection is not open.
	ErrNotOpen = errors.New("not open")
	// ErrReadTimeout is returned by Transport.Read when nothing arrives in time.
	ErrReadTimeout = errors.New("read timeout")
)

// UnknownTypeError is reported for a sub-packet without a registered handler.
type UnknownTypeError struct {
	Category byte
	Command  byte
}

// Error implements error.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %d (command %d)", e.Category, e.Command)
}

// TransportError wraps an I/O failure on the underlying link.
type TransportError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTimeout checks if err is a read timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrReadTimeout) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
