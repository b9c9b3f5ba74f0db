// Package stream implements orbus.Transport over a byte stream connection,
// e.g. a serial device server exposing the port over TCP.
package stream

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

// Defaults of Transport.
const (
	DefaultDialTimeout = 3 * time.Second
	DefaultBufferSize  = 256
)

// flushWindow is how long Flush waits for stale input.
const flushWindow = time.Millisecond

// Transport implements orbus.Transport with a net.Conn.
// The baud rate is configured on the device server, not here.
type Transport struct {
	Network     string
	DialTimeout time.Duration
	BufferSize  int

	conn net.Conn
	lock sync.Mutex
}

// New creates a Transport dialing TCP.
func New() *Transport {
	return &Transport{
		Network:     "tcp",
		DialTimeout: DefaultDialTimeout,
		BufferSize:  DefaultBufferSize,
	}
}

// Wrap creates a Transport over an established connection.
// Open on it is a no-op.
func Wrap(conn net.Conn) *Transport {
	t := New()
	t.conn = conn
	return t
}

// Open implements orbus.Transport.
func (t *Transport) Open(addr string, baudRate int) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.conn != nil {
		return nil
	}
	timeout := t.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	conn, err := net.DialTimeout(t.Network, addr, timeout)
	if err != nil {
		return err
	}
	t.conn = conn
	glog.V(2).Infof("stream %s connected", addr)
	return nil
}

// Read implements orbus.Transport.
func (t *Transport) Read(timeout time.Duration) ([]byte, error) {
	conn := t.current()
	if conn == nil {
		return nil, orbus.ErrNotOpen
	}
	size := t.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	buf := make([]byte, size)
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	n, err := conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, orbus.ErrReadTimeout
		}
		return nil, err
	}
	return buf[:0], nil
}

// Write implements orbus.Transport.
func (t *Transport) Write(p []byte) (int, error) {
	conn := t.current()
	if conn == nil {
		return 0, orbus.ErrNotOpen
	}
	return conn.Write(p)
}

// Flush implements orbus.Transport.
// It discards input already waiting on the connection.
func (t *Transport) Flush() error {
	conn := t.current()
	if conn == nil {
		return orbus.ErrNotOpen
	}
	buf := make([]byte, DefaultBufferSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(flushWindow)); err != nil {
			return err
		}
		n, err := conn.Read(buf)
		if n > 0 {
			glog.V(3).Infof("flushed %d bytes", n)
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			return err
		}
	}
}

// Close implements orbus.Transport.
func (t *Transport) Close() error {
	t.lock.Lock()
	conn := t.conn
	t.conn = nil
	t.lock.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsOpen implements orbus.Transport.
func (t *Transport) IsOpen() bool {
	return t.current() != nil
}

func (t *Transport) current() net.Conn {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.conn
}
