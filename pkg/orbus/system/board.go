// Package system handles the board housekeeping category:
// firmware identification, load statistics and reset.
package system

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

// CategorySystem is the category of housekeeping packets.
const CategorySystem byte = 'S'

// Commands of CategorySystem.
const (
	CmdCodeDate byte = iota
	CmdCodeVersion
	CmdCodeAuthor
	CmdCodeBoardType
	CmdCodeBoardName
	CmdReset
	CmdTime
)

// Unknown is reported for info fields not received yet.
const Unknown = "Unknown"

// TimeStatsLength is the payload size of CmdTime.
const TimeStatsLength = 10

// Info identifies the firmware on the board.
type Info struct {
	Date      string `json:"date"`
	Version   string `json:"version"`
	Author    string `json:"author"`
	BoardType string `json:"board_type"`
	BoardName string `json:"board_name"`
}

// String implements fmt.Stringer.
func (i Info) String() string {
	return fmt.Sprintf("Name board: %s\nBoard type: %s\nAuthor: %s\nVersion: %s\nBuild: %s",
		i.BoardName, i.BoardType, i.Author, i.Version, i.Date)
}

// TimeStats is the board load report.
// Idle is in percent, others are task durations in ns.
type TimeStats struct {
	Idle   int16 `json:"idle"`
	ADC    int16 `json:"adc"`
	LED    int16 `json:"led"`
	Parser int16 `json:"parser"`
	I2C    int16 `json:"i2c"`
}

// ParseTimeStats decodes the payload of CmdTime.
func ParseTimeStats(payload []byte) (stats TimeStats, err error) {
	if len(payload) < TimeStatsLength {
		return stats, fmt.Errorf("time stats needs %d bytes, got %d", TimeStatsLength, len(payload))
	}
	err = binary.Read(bytes.NewReader(payload[:TimeStatsLength]), binary.LittleEndian, &stats)
	return
}

// Bytes encodes the stats as the board sends them.
func (s TimeStats) Bytes() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &s)
	return buf.Bytes()
}

// Sender sends a batch in one round-trip.
type Sender interface {
	SendBatch([]*orbus.Packet, time.Duration) error
}

// Board tracks the housekeeping state reported by the board.
type Board struct {
	// TimeReported is called when new load stats arrive.
	TimeReported func(TimeStats)

	lock     sync.RWMutex
	info     Info
	stats    TimeStats
	statsAt  time.Time
	received int
}

// NewBoard creates a Board with unknown info.
func NewBoard() *Board {
	return &Board{info: Info{
		Date:      Unknown,
		Version:   Unknown,
		Author:    Unknown,
		BoardType: Unknown,
		BoardName: Unknown,
	}}
}

// InfoRequests creates requests for all info fields.
func InfoRequests() []*orbus.Packet {
	return []*orbus.Packet{
		orbus.NewRequest(CategorySystem, CmdCodeDate),
		orbus.NewRequest(CategorySystem, CmdCodeVersion),
		orbus.NewRequest(CategorySystem, CmdCodeAuthor),
		orbus.NewRequest(CategorySystem, CmdCodeBoardType),
		orbus.NewRequest(CategorySystem, CmdCodeBoardName),
	}
}

// Info gets the latest board info.
func (b *Board) Info() Info {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.info
}

// TimeStats gets the latest load stats and when they arrived.
func (b *Board) TimeStats() (TimeStats, time.Time) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.stats, b.statsAt
}

// Received returns the count of handled packets.
func (b *Board) Received() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.received
}

// RequestInfo asks for all info fields in one frame.
func (b *Board) RequestInfo(s Sender, timeout time.Duration) (Info, error) {
	if err := s.SendBatch(InfoRequests(), timeout); err != nil {
		return b.Info(), err
	}
	return b.Info(), nil
}

// RequestTime asks for load stats.
func (b *Board) RequestTime(s Sender, timeout time.Duration) (TimeStats, error) {
	err := s.SendBatch([]*orbus.Packet{orbus.NewRequest(CategorySystem, CmdTime)}, timeout)
	stats, _ := b.TimeStats()
	return stats, err
}

// Reset queues a software reset and sends the pending packets.
func Reset(ctl *orbus.Controller, timeout time.Duration) error {
	return ctl.Enqueue(orbus.NewRequest(CategorySystem, CmdReset)).SendPending(timeout)
}

// HandlePacket implements orbus.Handler.
func (b *Board) HandlePacket(ctx context.Context, pkt *orbus.Packet) {
	glog.V(3).Infof("system %v", pkt)
	b.lock.Lock()
	defer b.lock.Unlock()
	b.received++
	switch pkt.Command {
	case CmdCodeDate:
		b.info.Date = serviceString(pkt.Payload)
	case CmdCodeVersion:
		b.info.Version = serviceString(pkt.Payload)
	case CmdCodeAuthor:
		b.info.Author = serviceString(pkt.Payload)
	case CmdCodeBoardType:
		b.info.BoardType = serviceString(pkt.Payload)
	case CmdCodeBoardName:
		b.info.BoardName = serviceString(pkt.Payload)
	case CmdReset:
		glog.Infof("board reset acknowledged (%c)", pkt.Option)
	case CmdTime:
		stats, err := ParseTimeStats(pkt.Payload)
		if err != nil {
			glog.Warningf("system time: %v", err)
			return
		}
		b.stats, b.statsAt = stats, time.Now()
		if fn := b.TimeReported; fn != nil {
			fn(stats)
		}
	default:
		glog.Errorf("system command %d not implemented", pkt.Command)
	}
}

// serviceString decodes a NUL terminated string.
func serviceString(payload []byte) string {
	if n := bytes.IndexByte(payload, 0); n >= 0 {
		payload = payload[:n]
	}
	return string(payload)
}
