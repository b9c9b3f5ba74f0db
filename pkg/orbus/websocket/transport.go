// Package websocket implements orbus.Transport over a WebSocket bridge
// to the serial port. Each binary message carries a chunk of the stream.
package websocket

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

// DefaultOrigin is used when dialing.
const DefaultOrigin = "http://localhost/"

// Transport implements orbus.Transport.
type Transport struct {
	Origin string

	conn *websocket.Conn
	lock sync.Mutex
}

// New creates a Transport which dials on Open.
func New() *Transport {
	return &Transport{Origin: DefaultOrigin}
}

// Wrap wraps an established websocket.Conn.
func Wrap(conn *websocket.Conn) *Transport {
	return &Transport{Origin: DefaultOrigin, conn: conn}
}

// Open implements orbus.Transport.
// The port is the WebSocket URL, the baud rate is passed as a query
// parameter so the bridge can configure the port.
func (t *Transport) Open(url string, baudRate int) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.conn != nil {
		return nil
	}
	config, err := websocket.NewConfig(url, t.Origin)
	if err != nil {
		return err
	}
	if baudRate > 0 {
		q := config.Location.Query()
		q.Set("baud", strconv.Itoa(baudRate))
		config.Location.RawQuery = q.Encode()
	}
	conn, err := websocket.DialConfig(config)
	if err != nil {
		return err
	}
	conn.PayloadType = websocket.BinaryFrame
	t.conn = conn
	return nil
}

// Read implements orbus.Transport.
// A zero-length message is reported as an empty read.
func (t *Transport) Read(timeout time.Duration) (data []byte, err error) {
	conn := t.current()
	if conn == nil {
		return nil, orbus.ErrNotOpen
	}
	if err = conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	if err = websocket.Message.Receive(conn, &data); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, orbus.ErrReadTimeout
		}
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Write implements orbus.Transport.
func (t *Transport) Write(p []byte) (int, error) {
	conn := t.current()
	if conn == nil {
		return 0, orbus.ErrNotOpen
	}
	if err := websocket.Message.Send(conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush implements orbus.Transport.
// Messages are delivered as a whole, there is nothing to discard.
func (t *Transport) Flush() error {
	if t.current() == nil {
		return orbus.ErrNotOpen
	}
	return nil
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

func (t *Transport) current() *websocket.Conn {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.conn
}
