package orbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/orbus.go/pkg/framework"
)

type recorder struct {
	name string
	log  *[]string
}

func (r *recorder) HandlePacket(ctx context.Context, pkt *Packet) {
	*r.log = append(*r.log, r.name+":"+pkt.String())
}

func TestRegistryRegister(t *testing.T) {
	var log []string
	r := NewRegistry()
	first, second := &recorder{name: "first", log: &log}, &recorder{name: "second", log: &log}
	require.NoError(t, r.Register(5, first))
	err := r.Register(5, second)
	require.ErrorIs(t, err, ErrDuplicateRegistration)
	h, ok := r.Lookup(5)
	require.True(t, ok)
	require.Same(t, first, h)

	require.ErrorIs(t, r.Register(CategoryAlive, second), ErrReservedCategory)
	_, ok = r.Lookup(CategoryAlive)
	require.False(t, ok)

	r.Clear(5)
	_, ok = r.Lookup(5)
	require.False(t, ok)
	require.NoError(t, r.Register(5, second))
	require.NoError(t, r.Register(6, first))
	r.ClearAll()
	_, ok = r.Lookup(5)
	require.False(t, ok)
	_, ok = r.Lookup(6)
	require.False(t, ok)
}

func TestRegistryDispatch(t *testing.T) {
	var log []string
	r := NewRegistry()
	require.NoError(t, r.Register(1, &recorder{name: "a", log: &log}))
	require.NoError(t, r.Register(2, &recorder{name: "b", log: &log}))

	pkts := []*Packet{
		NewData(2, 1, nil),
		NewAliveProbe(),
		NewData(9, 3, nil),
		NewData(1, 2, nil),
		NewData(2, 4, nil),
	}
	err := r.Dispatch(context.Background(), pkts)
	require.Error(t, err)
	errs := fx.ErrorsOf(err)
	require.Len(t, errs, 1)
	var unknown *UnknownTypeError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, byte(9), unknown.Category)
	require.Equal(t, byte(3), unknown.Command)
	require.Equal(t, []string{
		"b:" + pkts[0].String(),
		"a:" + pkts[3].String(),
		"b:" + pkts[4].String(),
	}, log)
}

func TestRegistryDispatchAliveOnly(t *testing.T) {
	called := false
	r := NewRegistry()
	require.NoError(t, r.Register(1, HandlePacketFunc(func(context.Context, *Packet) { called = true })))
	require.NoError(t, r.Dispatch(context.Background(), []*Packet{NewAliveProbe()}))
	require.NoError(t, r.Dispatch(context.Background(), nil))
	require.False(t, called)
}

func TestRegistryZeroValue(t *testing.T) {
	var r Registry
	_, ok := r.Lookup(1)
	require.False(t, ok)
	require.NoError(t, r.Register(1, HandlePacketFunc(func(context.Context, *Packet) {})))
	_, ok = r.Lookup(1)
	require.True(t, ok)
}
