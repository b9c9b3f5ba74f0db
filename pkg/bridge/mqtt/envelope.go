package mqtt

import (
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

// Packets are carried over MQTT in protobuf wire format:
//
//	message Packet {
//	  uint32 category = 1;
//	  uint32 option   = 2;
//	  uint32 command  = 3;
//	  bytes  payload  = 4;
//	}
//	message Batch {
//	  repeated Packet packets = 1;
//	}
const (
	fieldCategory = 1
	fieldOption   = 2
	fieldCommand  = 3
	fieldPayload  = 4

	fieldPackets = 1
)

const (
	wireVarint = 0
	wireBytes  = 2
)

// ErrMalformed indicates the envelope can't be decoded.
var ErrMalformed = errors.New("malformed envelope")

func encodeKey(buf *proto.Buffer, field, wire int) {
	buf.EncodeVarint(uint64(field<<3 | wire))
}

// EncodePacket encodes a packet.
func EncodePacket(pkt *orbus.Packet) []byte {
	buf := proto.NewBuffer(nil)
	if pkt.Category != 0 {
		encodeKey(buf, fieldCategory, wireVarint)
		buf.EncodeVarint(uint64(pkt.Category))
	}
	if pkt.Option != 0 {
		encodeKey(buf, fieldOption, wireVarint)
		buf.EncodeVarint(uint64(pkt.Option))
	}
	if pkt.Command != 0 {
		encodeKey(buf, fieldCommand, wireVarint)
		buf.EncodeVarint(uint64(pkt.Command))
	}
	if len(pkt.Payload) > 0 {
		encodeKey(buf, fieldPayload, wireBytes)
		buf.EncodeRawBytes(pkt.Payload)
	}
	return buf.Bytes()
}

// EncodeBatch encodes packets.
func EncodeBatch(pkts []*orbus.Packet) []byte {
	buf := proto.NewBuffer(nil)
	for _, pkt := range pkts {
		encodeKey(buf, fieldPackets, wireBytes)
		buf.EncodeRawBytes(EncodePacket(pkt))
	}
	return buf.Bytes()
}

// field is a decoded key-value pair.
type field struct {
	num   int
	wire  int
	value uint64
	bytes []byte
}

// walk iterates the fields of a message.
func walk(data []byte, fn func(*field) error) error {
	for len(data) > 0 {
		key, n := proto.DecodeVarint(data)
		if n == 0 {
			return fmt.Errorf("%w: bad key", ErrMalformed)
		}
		data = data[n:]
		f := &field{num: int(key >> 3), wire: int(key & 7)}
		switch f.wire {
		case wireVarint:
			if f.value, n = proto.DecodeVarint(data); n == 0 {
				return fmt.Errorf("%w: bad varint of field %d", ErrMalformed, f.num)
			}
			data = data[n:]
		case wireBytes:
			size, n := proto.DecodeVarint(data)
			if n == 0 || uint64(len(data)-n) < size {
				return fmt.Errorf("%w: bad length of field %d", ErrMalformed, f.num)
			}
			f.bytes, data = data[n:n+int(size)], data[n+int(size):]
		default:
			return fmt.Errorf("%w: unsupported wire type %d", ErrMalformed, f.wire)
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func byteValue(f *field) (byte, error) {
	if f.wire != wireVarint || f.value > 0xff {
		return 0, fmt.Errorf("%w: field %d out of range", ErrMalformed, f.num)
	}
	return byte(f.value), nil
}

// DecodePacket decodes a packet. Unknown fields are skipped.
func DecodePacket(data []byte) (*orbus.Packet, error) {
	pkt := &orbus.Packet{}
	err := walk(data, func(f *field) (err error) {
		switch f.num {
		case fieldCategory:
			pkt.Category, err = byteValue(f)
		case fieldOption:
			pkt.Option, err = byteValue(f)
		case fieldCommand:
			pkt.Command, err = byteValue(f)
		case fieldPayload:
			if f.wire != wireBytes {
				return fmt.Errorf("%w: payload is not bytes", ErrMalformed)
			}
			if len(f.bytes) > orbus.MaxPayloadLength {
				return fmt.Errorf("%w: payload of %d bytes", orbus.ErrBufferFull, len(f.bytes))
			}
			pkt.Payload = append([]byte(nil), f.bytes...)
		}
		return
	})
	if err != nil {
		return nil, err
	}
	return pkt, nil
}

// DecodeBatch decodes packets.
func DecodeBatch(data []byte) (pkts []*orbus.Packet, err error) {
	err = walk(data, func(f *field) error {
		if f.num != fieldPackets {
			return nil
		}
		if f.wire != wireBytes {
			return fmt.Errorf("%w: packet is not a message", ErrMalformed)
		}
		pkt, err := DecodePacket(f.bytes)
		if err == nil {
			pkts = append(pkts, pkt)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return
}
