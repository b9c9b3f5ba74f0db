// Package board adds shell commands for board housekeeping and motors.
package board

import (
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/orbus.go/pkg/cli/sh"
	"github.com/robotalks/orbus.go/pkg/orbus"
	"github.com/robotalks/orbus.go/pkg/orbus/serial"
	"github.com/robotalks/orbus.go/pkg/orbus/system"
)

var (
	// InfoCmd queries firmware information.
	InfoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"i"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			info, err := s.Board.RequestInfo(s.Controller, s.Config.Timeout.Duration)
			if err != nil {
				s.Done(c, err)
				return
			}
			s.Print(c, info.String(), info)
		}),
	}

	// TimeCmd queries board load.
	TimeCmd = ishell.Cmd{
		Name:    "time",
		Aliases: []string{"t"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			stats, err := s.Board.RequestTime(s.Controller, s.Config.Timeout.Duration)
			if err != nil {
				s.Done(c, err)
				return
			}
			s.Print(c, fmt.Sprintf("Idle: %d%%\nADC: %dns\nLED: %dns\nSerial parser: %dns\nI2C: %dns",
				stats.Idle, stats.ADC, stats.LED, stats.Parser, stats.I2C), stats)
		}),
	}

	// ResetCmd resets the board.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			s.Done(c, system.Reset(s.Controller, s.Config.Timeout.Duration))
		}),
	}

	// MotorCmd sends a command to a motor.
	MotorCmd = ishell.Cmd{
		Name:    "motor",
		Aliases: []string{"m"},
		Help:    "MOTOR COMMAND [PAYLOAD-HEX]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("MOTOR COMMAND required"))
				return
			}
			motor, err := sh.ParseByte(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			cmd, err := sh.ParseByte(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			if motor > 0x0f || cmd > 0x0f {
				c.Err(fmt.Errorf("MOTOR and COMMAND must be within 0-15"))
				return
			}
			payload, err := sh.ParsePayload(c.Args[2:]...)
			if err != nil {
				c.Err(err)
				return
			}
			pkt := system.MotorRequest(motor, cmd)
			if payload != nil {
				pkt = system.MotorData(motor, cmd, payload)
			}
			s := sh.ShellFrom(c)
			s.Done(c, s.Controller.SendBatch([]*orbus.Packet{pkt}, s.Config.Timeout.Duration))
		}),
	}

	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "",
		Func: func(c *ishell.Context) {
			ports, err := serial.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			if ports == nil {
				ports = []string{}
			}
			sh.ShellFrom(c).Print(c, strings.Join(ports, "\n"), ports)
		},
	}
)

func init() {
	sh.AddCmds(
		&InfoCmd,
		&TimeCmd,
		&ResetCmd,
		&MotorCmd,
		&PortsCmd,
	)
}
