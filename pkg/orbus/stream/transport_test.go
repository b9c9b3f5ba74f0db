package stream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

// echoBoard replies each received frame with the same packets.
func echoBoard(conn net.Conn) {
	decoder := orbus.NewDecoder(0)
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			if !decoder.Feed(b) {
				continue
			}
			frame := decoder.Frame()
			decoder.Reset()
			if _, err := conn.Write(frame.Bytes()); err != nil {
				return
			}
		}
	}
}

func TestTransportReadTimeout(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	tr := Wrap(local)
	require.True(t, tr.IsOpen())
	require.NoError(t, tr.Open("ignored", 0))

	_, err := tr.Read(10 * time.Millisecond)
	require.ErrorIs(t, err, orbus.ErrReadTimeout)

	go remote.Write([]byte{1, 2, 3})
	data, err := tr.Read(time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)

	require.NoError(t, tr.Flush())
	require.NoError(t, tr.Close())
	require.False(t, tr.IsOpen())
	_, err = tr.Read(time.Millisecond)
	require.ErrorIs(t, err, orbus.ErrNotOpen)
	_, err = tr.Write([]byte{1})
	require.ErrorIs(t, err, orbus.ErrNotOpen)
	require.NoError(t, tr.Close())
}

func TestTransportController(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	go echoBoard(remote)

	ctl := orbus.NewController(Wrap(local), "pipe", 0)
	ctl.PollInterval = 10 * time.Millisecond
	require.NoError(t, ctl.Start())
	defer ctl.Stop()

	received := make(chan *orbus.Packet, 1)
	require.NoError(t, ctl.Register(5, orbus.HandlePacketFunc(func(ctx context.Context, pkt *orbus.Packet) {
		received <- pkt
	})))
	require.NoError(t, ctl.SendSync(orbus.NewData(5, 1, []byte{0xAA}), 3, time.Second))
	require.Equal(t, orbus.StatusOK, ctl.Status())
	require.Equal(t, orbus.NewData(5, 1, []byte{0xAA}), <-received)
}

func TestTransportDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		echoBoard(conn)
		conn.Close()
	}()

	tr := New()
	require.False(t, tr.IsOpen())
	require.NoError(t, tr.Open(ln.Addr().String(), 115200))
	defer tr.Close()
	f, err := orbus.EncodeFrame([]*orbus.Packet{orbus.NewAliveProbe()}, 0)
	require.NoError(t, err)
	n, err := tr.Write(f.Bytes())
	require.NoError(t, err)
	require.Equal(t, len(f.Bytes()), n)

	var got []byte
	for len(got) < n {
		data, err := tr.Read(time.Second)
		require.NoError(t, err)
		got = append(got, data...)
	}
	require.Equal(t, f.Bytes(), got)
}
