package orbus

import "time"

// Transport abstracts the physical link to the board.
type Transport interface {
	// Open opens the port.
	Open(port string, baudRate int) error
	// Read waits up to timeout for available bytes.
	// It returns ErrReadTimeout if nothing arrives, and an empty
	// slice with nil error if the link reported an empty read.
	Read(timeout time.Duration) ([]byte, error)
	// Write writes all bytes.
	Write(p []byte) (int, error)
	// Flush discards buffered input and output.
	Flush() error
	// Close closes the port, unblocking a pending Read.
	Close() error
	// IsOpen indicates if the port is open.
	IsOpen() bool
}
