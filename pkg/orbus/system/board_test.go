package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

// fakeSender answers requests by calling the handler directly.
type fakeSender struct {
	handler orbus.Handler
	replies map[byte][]byte
	sent    [][]*orbus.Packet
	err     error
}

func (s *fakeSender) SendBatch(pkts []*orbus.Packet, timeout time.Duration) error {
	s.sent = append(s.sent, pkts)
	if s.err != nil {
		return s.err
	}
	for _, pkt := range pkts {
		if payload, ok := s.replies[pkt.Command]; ok {
			s.handler.HandlePacket(context.Background(), orbus.NewData(pkt.Category, pkt.Command, payload))
		}
	}
	return nil
}

func TestBoardInfo(t *testing.T) {
	b := NewBoard()
	require.Equal(t, Unknown, b.Info().BoardName)
	s := &fakeSender{handler: b, replies: map[byte][]byte{
		CmdCodeDate:      []byte("Oct 19 2026\x00\x00\x00"),
		CmdCodeVersion:   []byte("0.3"),
		CmdCodeAuthor:    []byte("OR\x00garbage"),
		CmdCodeBoardType: []byte("Motor Control\x00"),
		CmdCodeBoardName: []byte("uNav\x00"),
	}}
	info, err := b.RequestInfo(s, time.Second)
	require.NoError(t, err)
	require.Equal(t, Info{
		Date:      "Oct 19 2026",
		Version:   "0.3",
		Author:    "OR",
		BoardType: "Motor Control",
		BoardName: "uNav",
	}, info)
	require.Len(t, s.sent, 1)
	require.Equal(t, InfoRequests(), s.sent[0])
	require.Equal(t, 5, b.Received())
	require.Contains(t, info.String(), "Name board: uNav")
}

func TestBoardInfoFailure(t *testing.T) {
	b := NewBoard()
	failure := errors.New("failure")
	info, err := b.RequestInfo(&fakeSender{handler: b, err: failure}, time.Second)
	require.Equal(t, failure, err)
	require.Equal(t, Unknown, info.Version)
}

func TestBoardTime(t *testing.T) {
	b := NewBoard()
	var reported []TimeStats
	b.TimeReported = func(stats TimeStats) { reported = append(reported, stats) }
	expect := TimeStats{Idle: 87, ADC: 1200, LED: -3, Parser: 450, I2C: 0x1234}
	payload := expect.Bytes()
	require.Equal(t, []byte{87, 0, 0xb0, 0x04, 0xfd, 0xff, 0xc2, 0x01, 0x34, 0x12}, payload)

	s := &fakeSender{handler: b, replies: map[byte][]byte{CmdTime: payload}}
	stats, err := b.RequestTime(s, time.Second)
	require.NoError(t, err)
	require.Equal(t, expect, stats)
	require.Equal(t, []TimeStats{expect}, reported)
	_, at := b.TimeStats()
	require.False(t, at.IsZero())
}

func TestBoardIgnoresMalformed(t *testing.T) {
	b := NewBoard()
	b.HandlePacket(context.Background(), orbus.NewData(CategorySystem, CmdTime, []byte{1, 2, 3}))
	b.HandlePacket(context.Background(), orbus.NewData(CategorySystem, 0x7f, nil))
	stats, at := b.TimeStats()
	require.Equal(t, TimeStats{}, stats)
	require.True(t, at.IsZero())
	require.Equal(t, 2, b.Received())

	_, err := ParseTimeStats([]byte{1})
	require.Error(t, err)
}
