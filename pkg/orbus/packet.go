package orbus

import "fmt"

// Sub-packet layout.
const (
	// PacketHeaderLength is the size of [self-length][category][option][command].
	PacketHeaderLength = 4
	// MaxPayloadLength is the largest payload a single sub-packet can carry,
	// as self-length is a single byte.
	MaxPayloadLength = 0xff - PacketHeaderLength
)

// CategoryAlive is the reserved category for liveness probes.
const CategoryAlive byte = 0

// Option values understood by the board firmware.
const (
	OptionNACK    byte = 'N'
	OptionACK     byte = 'K'
	OptionData    byte = 'D'
	OptionRequest byte = 'R'
)

// Packet is a logical message multiplexed inside a frame.
type Packet struct {
	Category byte
	Option   byte
	Command  byte
	Payload  []byte
}

// NewRequest creates a packet requesting data from the board.
func NewRequest(category, command byte) *Packet {
	return &Packet{Category: category, Option: OptionRequest, Command: command}
}

// NewData creates a packet carrying data to the board.
func NewData(category, command byte, payload []byte) *Packet {
	return &Packet{Category: category, Option: OptionData, Command: command, Payload: payload}
}

// NewAliveProbe creates the liveness probe packet.
func NewAliveProbe() *Packet {
	return NewRequest(CategoryAlive, 0)
}

// SelfLength returns the encoded size of the sub-packet.
func (p *Packet) SelfLength() int {
	return PacketHeaderLength + len(p.Payload)
}

// IsAlive indicates the packet is a liveness probe.
func (p *Packet) IsAlive() bool {
	return p.Category == CategoryAlive
}

// String implements fmt.Stringer.
func (p *Packet) String() string {
	return fmt.Sprintf("[cat=%d opt=%q cmd=%d len=%d]", p.Category, p.Option, p.Command, len(p.Payload))
}

// appendTo appends the encoded sub-packet.
func (p *Packet) appendTo(b []byte) []byte {
	b = append(b, byte(p.SelfLength()), p.Category, p.Option, p.Command)
	return append(b, p.Payload...)
}
