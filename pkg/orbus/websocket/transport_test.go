package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

func TestTransport(t *testing.T) {
	baudCh := make(chan string, 1)
	server := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		baudCh <- conn.Request().URL.Query().Get("baud")
		for {
			var msg []byte
			if err := websocket.Message.Receive(conn, &msg); err != nil {
				return
			}
			if err := websocket.Message.Send(conn, msg); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	tr := New()
	require.False(t, tr.IsOpen())
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/serial"
	require.NoError(t, tr.Open(url, 115200))
	defer tr.Close()
	require.True(t, tr.IsOpen())
	require.Equal(t, "115200", <-baudCh)

	_, err := tr.Read(10 * time.Millisecond)
	require.ErrorIs(t, err, orbus.ErrReadTimeout)
	tr.Close()
	require.NoError(t, tr.Open(url, 0))
	<-baudCh

	n, err := tr.Write([]byte{'#', 0, 0})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	data, err := tr.Read(time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{'#', 0, 0}, data)

	_, err = tr.Write([]byte{})
	require.NoError(t, err)
	data, err = tr.Read(time.Second)
	require.NoError(t, err)
	require.Empty(t, data)

	require.NoError(t, tr.Flush())
	require.NoError(t, tr.Close())
	_, err = tr.Read(time.Millisecond)
	require.ErrorIs(t, err, orbus.ErrNotOpen)
}
