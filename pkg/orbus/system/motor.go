package system

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/orbus.go/pkg/orbus"
)

// CategoryMotor is the category of per-motor packets.
const CategoryMotor byte = 'M'

// MotorCommand packs the motor index in the high nibble
// and the command in the low nibble.
type MotorCommand byte

// NewMotorCommand creates a MotorCommand.
func NewMotorCommand(motor, command byte) MotorCommand {
	return MotorCommand(motor<<4 | command&0x0f)
}

// Motor returns the motor index.
func (c MotorCommand) Motor() byte {
	return byte(c) >> 4
}

// Command returns the motor specific command.
func (c MotorCommand) Command() byte {
	return byte(c) & 0x0f
}

// MotorRequest creates a request for the motor.
func MotorRequest(motor, command byte) *orbus.Packet {
	return orbus.NewRequest(CategoryMotor, byte(NewMotorCommand(motor, command)))
}

// MotorData creates a data packet for the motor.
func MotorData(motor, command byte, payload []byte) *orbus.Packet {
	return orbus.NewData(CategoryMotor, byte(NewMotorCommand(motor, command)), payload)
}

// MotorMux routes motor packets to per-motor handlers.
type MotorMux struct {
	handlers map[byte]orbus.Handler
	lock     sync.RWMutex
}

// NewMotorMux creates a MotorMux.
func NewMotorMux() *MotorMux {
	return &MotorMux{handlers: make(map[byte]orbus.Handler)}
}

// Handle binds a handler to the motor, replacing any previous one.
func (m *MotorMux) Handle(motor byte, h orbus.Handler) *MotorMux {
	m.lock.Lock()
	m.handlers[motor&0x0f] = h
	m.lock.Unlock()
	return m
}

// HandlePacket implements orbus.Handler.
func (m *MotorMux) HandlePacket(ctx context.Context, pkt *orbus.Packet) {
	cmd := MotorCommand(pkt.Command)
	m.lock.RLock()
	h, ok := m.handlers[cmd.Motor()]
	m.lock.RUnlock()
	if !ok {
		glog.Warningf("no handler for motor %d (command %d)", cmd.Motor(), cmd.Command())
		return
	}
	h.HandlePacket(ctx, pkt)
}
