package orbus

import (
	"fmt"
	"io"
)

// Frame start markers.
const (
	MarkerSync  byte = '#'
	MarkerAsync byte = '@'
)

// Frame layout.
const (
	// FrameHeaderLength is the size of [marker][length].
	FrameHeaderLength = 2
	// MaxFrameLength is the largest body the length byte can describe.
	MaxFrameLength = 0xff
	// DefaultMaxFrameLength matches the receive buffer of the board firmware.
	DefaultMaxFrameLength = 200
)

// Frame is one physical transmission unit.
type Frame struct {
	Async bool
	Body  []byte
}

// Len returns the count of valid body bytes.
func (f *Frame) Len() int {
	return len(f.Body)
}

// Marker returns the start marker of the frame.
func (f *Frame) Marker() byte {
	if f.Async {
		return MarkerAsync
	}
	return MarkerSync
}

// Bytes returns encoded bytes for sending.
func (f *Frame) Bytes() []byte {
	b := make([]byte, 0, FrameHeaderLength+len(f.Body)+1)
	b = append(b, f.Marker(), byte(len(f.Body)))
	b = append(b, f.Body...)
	return append(b, Checksum(f.Body))
}

// WriteTo writes encoded bytes.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

// Checksum calculates the frame trailer over body.
func Checksum(body []byte) (sum byte) {
	for _, b := range body {
		sum += b
	}
	return
}

// EncodeFrame lays out packets into one frame.
// The body must not exceed maxLength, which is capped to MaxFrameLength.
func EncodeFrame(pkts []*Packet, maxLength int) (*Frame, error) {
	if maxLength <= 0 || maxLength > MaxFrameLength {
		maxLength = MaxFrameLength
	}
	size := 0
	for _, pkt := range pkts {
		if len(pkt.Payload) > MaxPayloadLength {
			return nil, fmt.Errorf("%w: payload of %v exceeds %d bytes", ErrBufferFull, pkt, MaxPayloadLength)
		}
		size += pkt.SelfLength()
	}
	if size > maxLength {
		return nil, fmt.Errorf("%w: %d packets need %d bytes, limit %d", ErrBufferFull, len(pkts), size, maxLength)
	}
	body := make([]byte, 0, size)
	for _, pkt := range pkts {
		body = pkt.appendTo(body)
	}
	return &Frame{Body: body}, nil
}

// DecodeFrame splits the frame body into packets.
// Any inconsistency rejects the whole frame.
func DecodeFrame(f *Frame) ([]*Packet, error) {
	body := f.Body
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrFraming)
	}
	var pkts []*Packet
	for off := 0; off < len(body); {
		l := int(body[off])
		if l < PacketHeaderLength {
			return nil, fmt.Errorf("%w: invalid self-length %d at %d", ErrFraming, l, off)
		}
		if off+l > len(body) {
			return nil, fmt.Errorf("%w: self-length %d at %d exceeds frame length %d", ErrFraming, l, off, len(body))
		}
		pkt := &Packet{
			Category: body[off+1],
			Option:   body[off+2],
			Command:  body[off+3],
		}
		if l > PacketHeaderLength {
			pkt.Payload = append([]byte(nil), body[off+PacketHeaderLength:off+l]...)
		}
		pkts = append(pkts, pkt)
		off += l
	}
	return pkts, nil
}
