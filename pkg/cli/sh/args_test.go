package sh

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

func TestParseByte(t *testing.T) {
	testCases := []struct {
		in     string
		expect byte
		fail   bool
	}{
		{"5", 5, false},
		{"255", 255, false},
		{"0x53", 0x53, false},
		{"R", 'R', false},
		{"S", 'S', false},
		{"256", 0, true},
		{"xy", 0, true},
		{"", 0, true},
	}
	for _, tc := range testCases {
		val, err := ParseByte(tc.in)
		if tc.fail {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.expect, val, tc.in)
	}
}

func TestParsePacket(t *testing.T) {
	pkt, err := ParsePacket([]string{"5", "D", "1", "aa:bb", "cc"})
	require.NoError(t, err)
	require.Equal(t, orbus.NewData(5, 1, []byte{0xaa, 0xbb, 0xcc}), pkt)
	require.Equal(t, "5 D 1 aabbcc", FormatPacket(pkt))

	pkt, err = ParsePacket([]string{"S", "R", "0x06"})
	require.NoError(t, err)
	require.Equal(t, orbus.NewRequest('S', 6), pkt)
	require.Equal(t, "83 R 6", FormatPacket(pkt))

	_, err = ParsePacket([]string{"5", "D"})
	require.Error(t, err)
	_, err = ParsePacket([]string{"5", "D", "1", "zz"})
	require.Error(t, err)
	_, err = ParsePayload(make([]string, 0)...)
	require.NoError(t, err)
}
