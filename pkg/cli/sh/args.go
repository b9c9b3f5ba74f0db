package sh

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

// ParseByte parses a byte from decimal, 0x-prefixed hex
// or a single letter for its ASCII code.
func ParseByte(s string) (byte, error) {
	if len(s) == 1 && (s[0] < '0' || s[0] > '9') {
		return s[0], nil
	}
	val, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return byte(val), nil
}

// ParsePayload parses hex bytes, optionally separated by colons or spaces.
func ParsePayload(args ...string) ([]byte, error) {
	str := strings.Join(args, "")
	str = strings.NewReplacer(":", "", " ", "").Replace(str)
	if str == "" {
		return nil, nil
	}
	payload, err := hex.DecodeString(str)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %v", err)
	}
	if len(payload) > orbus.MaxPayloadLength {
		return nil, fmt.Errorf("payload exceeds %d bytes", orbus.MaxPayloadLength)
	}
	return payload, nil
}

// ParsePacket parses CATEGORY OPTION COMMAND [PAYLOAD...].
func ParsePacket(args []string) (*orbus.Packet, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("CATEGORY OPTION COMMAND required")
	}
	var pkt orbus.Packet
	var err error
	if pkt.Category, err = ParseByte(args[0]); err != nil {
		return nil, err
	}
	if pkt.Option, err = ParseByte(args[1]); err != nil {
		return nil, err
	}
	if pkt.Command, err = ParseByte(args[2]); err != nil {
		return nil, err
	}
	if pkt.Payload, err = ParsePayload(args[3:]...); err != nil {
		return nil, err
	}
	return &pkt, nil
}

// FormatPacket prints the packet with the payload in hex.
func FormatPacket(pkt *orbus.Packet) string {
	opt := strconv.Itoa(int(pkt.Option))
	if pkt.Option >= 'A' && pkt.Option <= 'Z' {
		opt = string(rune(pkt.Option))
	}
	str := fmt.Sprintf("%d %s %d", pkt.Category, opt, pkt.Command)
	if len(pkt.Payload) > 0 {
		str += " " + hex.EncodeToString(pkt.Payload)
	}
	return str
}
