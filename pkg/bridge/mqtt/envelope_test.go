package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

func TestEnvelope(t *testing.T) {
	pkt := orbus.NewData(5, 1, []byte{0xAA, 0xBB})
	data := EncodePacket(pkt)
	require.Equal(t, []byte{0x08, 5, 0x10, 'D', 0x18, 1, 0x22, 2, 0xAA, 0xBB}, data)
	decoded, err := DecodePacket(data)
	require.NoError(t, err)
	require.Equal(t, pkt, decoded)

	// zero values are omitted
	require.Empty(t, EncodePacket(&orbus.Packet{}))
	decoded, err = DecodePacket(nil)
	require.NoError(t, err)
	require.Equal(t, &orbus.Packet{}, decoded)
}

func TestEnvelopeBatch(t *testing.T) {
	pkts := []*orbus.Packet{
		orbus.NewRequest(83, 0),
		orbus.NewData(77, 0x12, []byte{1, 2, 3}),
		{Category: 200, Option: orbus.OptionACK, Command: 255},
	}
	decoded, err := DecodeBatch(EncodeBatch(pkts))
	require.NoError(t, err)
	require.Equal(t, pkts, decoded)

	decoded, err = DecodeBatch(nil)
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestEnvelopeSkipsUnknownFields(t *testing.T) {
	data := append([]byte{0x28, 0x96, 0x01, 0x32, 1, 0xff}, EncodePacket(orbus.NewRequest(7, 2))...)
	decoded, err := DecodePacket(data)
	require.NoError(t, err)
	require.Equal(t, orbus.NewRequest(7, 2), decoded)
}

func TestEnvelopeMalformed(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"truncated varint", []byte{0x08, 0x80}},
		{"truncated bytes", []byte{0x22, 5, 1, 2}},
		{"category overflow", []byte{0x08, 0x80, 0x02}},
		{"fixed64", []byte{0x09, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"payload as varint", []byte{0x20, 1}},
		{"bad key", []byte{0x80}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodePacket(tc.data)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
	_, err := DecodePacket(append([]byte{0x22, 0xfc, 0x01}, make([]byte, 252)...))
	require.ErrorIs(t, err, orbus.ErrBufferFull)

	_, err = DecodeBatch([]byte{0x08, 1})
	require.ErrorIs(t, err, ErrMalformed)
}
