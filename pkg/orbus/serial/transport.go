// Package serial implements orbus.Transport over a serial port.
package serial

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	bugst "go.bug.st/serial"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

// DefaultBufferSize is the size of a single read.
const DefaultBufferSize = 256

// Transport implements orbus.Transport using go.bug.st/serial.
type Transport struct {
	DataBits   int
	Parity     bugst.Parity
	StopBits   bugst.StopBits
	BufferSize int

	port        bugst.Port
	portName    string
	readTimeout time.Duration
	lock        sync.Mutex
}

// New creates a Transport with 8N1 framing.
func New() *Transport {
	return &Transport{
		DataBits:   8,
		Parity:     bugst.NoParity,
		StopBits:   bugst.OneStopBit,
		BufferSize: DefaultBufferSize,
	}
}

// Ports lists serial ports available on the system.
func Ports() ([]string, error) {
	return bugst.GetPortsList()
}

// Open implements orbus.Transport.
func (t *Transport) Open(port string, baudRate int) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.port != nil {
		return fmt.Errorf("%s already open", t.portName)
	}
	p, err := bugst.Open(port, &bugst.Mode{
		BaudRate: baudRate,
		DataBits: t.DataBits,
		Parity:   t.Parity,
		StopBits: t.StopBits,
	})
	if err != nil {
		return err
	}
	t.port, t.portName, t.readTimeout = p, port, 0
	glog.V(2).Infof("serial %s open at %d baud", port, baudRate)
	return nil
}

// Read implements orbus.Transport.
func (t *Transport) Read(timeout time.Duration) ([]byte, error) {
	t.lock.Lock()
	port := t.port
	if port != nil && timeout != t.readTimeout {
		if err := port.SetReadTimeout(timeout); err != nil {
			t.lock.Unlock()
			return nil, err
		}
		t.readTimeout = timeout
	}
	t.lock.Unlock()
	if port == nil {
		return nil, orbus.ErrNotOpen
	}

	size := t.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	buf := make([]byte, size)
	n, err := port.Read(buf)
	if err != nil {
		return nil, err
	}
	// go.bug.st/serial returns 0 bytes when the read timeout expires.
	if n == 0 {
		return nil, orbus.ErrReadTimeout
	}
	return buf[:n], nil
}

// Write implements orbus.Transport.
func (t *Transport) Write(p []byte) (int, error) {
	port := t.current()
	if port == nil {
		return 0, orbus.ErrNotOpen
	}
	return port.Write(p)
}

// Flush implements orbus.Transport.
func (t *Transport) Flush() error {
	port := t.current()
	if port == nil {
		return orbus.ErrNotOpen
	}
	if err := port.ResetInputBuffer(); err != nil {
		return err
	}
	return port.ResetOutputBuffer()
}

// Close implements orbus.Transport.
func (t *Transport) Close() error {
	t.lock.Lock()
	port := t.port
	t.port = nil
	t.lock.Unlock()
	if port == nil {
		return nil
	}
	return port.Close()
}

// IsOpen implements orbus.Transport.
func (t *Transport) IsOpen() bool {
	return t.current() != nil
}

func (t *Transport) current() bugst.Port {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.port
}
