package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/orbus.go/pkg/framework"
	"github.com/robotalks/orbus.go/pkg/orbus"
)

func newTestBridge(t *testing.T) (*Bridge, *fakeClient) {
	client := newFakeClient()
	ctl := orbus.NewController(nil, "test", 0)
	b := &Bridge{
		Queue:        &Queue{Client: client, TopicPrefix: "orbus/"},
		Controller:   ctl,
		Node:         "rover",
		Categories:   []byte{77, 83},
		FlushTimeout: 10 * time.Millisecond,
	}
	require.NoError(t, b.Setup())
	return b, client
}

func TestBridgeSetup(t *testing.T) {
	b, client := newTestBridge(t)
	require.Contains(t, client.subs, "orbus/rover/send")
	_, ok := b.Controller.Registry().Lookup(77)
	require.True(t, ok)

	b.Teardown()
	_, ok = b.Controller.Registry().Lookup(77)
	require.False(t, ok)
	require.Empty(t, client.subs)
}

func TestBridgeSetupConflict(t *testing.T) {
	client := newFakeClient()
	ctl := orbus.NewController(nil, "test", 0)
	require.NoError(t, ctl.Register(83, orbus.HandlePacketFunc(func(context.Context, *orbus.Packet) {})))
	b := &Bridge{
		Queue:      &Queue{Client: client},
		Controller: ctl,
		Node:       "rover",
		Categories: []byte{77, 83},
	}
	require.ErrorIs(t, b.Setup(), orbus.ErrDuplicateRegistration)
	_, ok := ctl.Registry().Lookup(77)
	require.False(t, ok)
	_, ok = ctl.Registry().Lookup(83)
	require.True(t, ok)
}

func TestBridgePublishesPackets(t *testing.T) {
	b, client := newTestBridge(t)
	err := b.Controller.Registry().Dispatch(context.Background(), []*orbus.Packet{orbus.NewData(77, 1, []byte{9})})
	require.NoError(t, err)
	msg := client.lastPublished()
	require.Equal(t, "orbus/rover/pkt/77", msg.topic)
	pkt, err := DecodePacket(msg.payload)
	require.NoError(t, err)
	require.Equal(t, orbus.NewData(77, 1, []byte{9}), pkt)

	b.StateChanged(context.Background(), orbus.StateOpen)
	require.Equal(t, published{topic: "orbus/rover/state", qos: 1, retain: true, payload: []byte("OPEN")}, client.lastPublished())

	require.NoError(t, b.PublishJSON(TopicInfo, map[string]string{"board_name": "uNav"}))
	require.Equal(t, published{
		topic:   "orbus/rover/info",
		qos:     1,
		retain:  true,
		payload: []byte(`{"board_name":"uNav"}`),
	}, client.lastPublished())
}

func TestBridgeSend(t *testing.T) {
	b, client := newTestBridge(t)
	pkts := []*orbus.Packet{orbus.NewData(77, 1, []byte{1}), orbus.NewAliveProbe(), orbus.NewRequest(83, 6)}
	client.deliver("orbus/rover/send", "orbus/rover/send", EncodeBatch(pkts))
	require.Equal(t, 2, b.Controller.Pending())

	client.deliver("orbus/rover/send", "orbus/rover/send", []byte{0xff})
	require.Equal(t, 2, b.Controller.Pending())

	// not flushed while the controller is closed
	require.NoError(t, b.RunTask(context.Background()))
	require.Equal(t, 2, b.Controller.Pending())
}

func TestBridgeAddToLoop(t *testing.T) {
	b, client := newTestBridge(t)
	b.Teardown()
	loop := fx.NewLoop()
	loop.Add(b)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, loop.Run(ctx))
	require.Equal(t, published{topic: "orbus/rover/state", qos: 1, retain: true, payload: []byte(StateOffline)}, client.lastPublished())
	require.Empty(t, client.subs)
}
