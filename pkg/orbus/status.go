package orbus

import "errors"

// Status is the outcome of the latest round-trip.
type Status int

const (
	// StatusOK means the latest round-trip succeeded.
	StatusOK Status = iota
	// StatusEmpty means a zero-length reply was received.
	StatusEmpty
	// StatusBufferFull means the batch didn't fit into one frame.
	StatusBufferFull
	// StatusTimeout means no reply arrived in time.
	StatusTimeout
	// StatusTransportError means the link failed.
	StatusTransportError
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusEmpty:
		return "EMPTY"
	case StatusBufferFull:
		return "BUFFER_FULL"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusTransportError:
		return "TRANSPORT_ERROR"
	}
	return "UNKNOWN"
}

// StatusOf maps the error of a round-trip to a Status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrBufferFull):
		return StatusBufferFull
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	case errors.Is(err, ErrEmpty), errors.Is(err, ErrFraming):
		return StatusEmpty
	}
	return StatusTransportError
}

// ConnState is the lifecycle state of a Controller.
type ConnState int

const (
	// StateClosed means the transport is closed.
	StateClosed ConnState = iota
	// StateOpening means the transport is open and the liveness probe is in progress.
	StateOpening
	// StateOpen means the board answered the probe.
	StateOpen
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	}
	return "UNKNOWN"
}
