package orbus

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	testCases := []struct {
		err    error
		expect Status
	}{
		{nil, StatusOK},
		{ErrBufferFull, StatusBufferFull},
		{fmt.Errorf("%w: too long", ErrBufferFull), StatusBufferFull},
		{ErrTimeout, StatusTimeout},
		{ErrEmpty, StatusEmpty},
		{fmt.Errorf("%w: bad", ErrFraming), StatusEmpty},
		{&TransportError{Op: "read", Err: errors.New("EOF")}, StatusTransportError},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expect, StatusOf(tc.err), "%v", tc.err)
	}
}

type netTimeout struct{}

func (netTimeout) Error() string { return "i/o timeout" }
func (netTimeout) Timeout() bool { return true }

func TestIsTimeout(t *testing.T) {
	require.True(t, IsTimeout(ErrReadTimeout))
	require.True(t, IsTimeout(&TransportError{Op: "read", Err: netTimeout{}}))
	require.False(t, IsTimeout(ErrTimeout))
	require.False(t, IsTimeout(nil))
}

func TestStrings(t *testing.T) {
	require.Equal(t, "BUFFER_FULL", StatusBufferFull.String())
	require.Equal(t, "OPENING", StateOpening.String())
	require.Equal(t, "ACCUMULATING", DecoderAccumulating.String())
	require.Equal(t, "[cat=5 opt='D' cmd=1 len=1]", NewData(5, 1, []byte{0xAA}).String())
}
