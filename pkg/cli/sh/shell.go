// Package sh provides an interactive shell to talk to the board.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/orbus.go/pkg/config"
	"github.com/robotalks/orbus.go/pkg/orbus"
	"github.com/robotalks/orbus.go/pkg/orbus/system"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell      *ishell.Shell
	Config     *config.Config
	Controller *orbus.Controller
	Board      *system.Board

	watchLock sync.Mutex
	watched   map[byte]bool
}

const (
	shellKey     = "$shell"
	closedPrompt = "[closed] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&StatusCmd,
		&ProbeCmd,
		&SendCmd,
		&SyncCmd,
		&EnqueueCmd,
		&FlushCmd,
		&WatchCmd,
		&UnwatchCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:   ishell.New(),
		Config:  conf,
		Board:   system.NewBoard(),
		watched: make(map[byte]bool),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requires an open connection.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		if s.Controller == nil || s.Controller.State() != orbus.StateOpen {
			c.Err(orbus.ErrNotOpen)
			return
		}
		fn(c)
	}
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Open connects the board on the configured port.
func (s *Shell) Open() error {
	if s.Controller != nil && s.Controller.State() == orbus.StateOpen {
		return nil
	}
	if s.Controller == nil {
		ctl, err := s.Config.NewController()
		if err != nil {
			return err
		}
		if err = ctl.Register(system.CategorySystem, s.Board); err != nil {
			return err
		}
		s.Controller = ctl
	}
	if err := s.Controller.Start(); err != nil {
		return err
	}
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", s.Controller.Port))
	return nil
}

// Close disconnects the board.
func (s *Shell) Close() {
	if s.Controller != nil {
		s.Controller.Stop()
		s.Shell.SetPrompt(closedPrompt)
	}
}

// Print prints the result in text or JSON.
func (s *Shell) Print(c *ishell.Context, text string, v interface{}) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// Done prints the outcome of a round-trip.
func (s *Shell) Done(c *ishell.Context, err error) {
	if err != nil {
		c.Err(fmt.Errorf("%v (%s)", err, s.Controller.Status()))
		return
	}
	s.Print(c, "OK", map[string]string{"status": s.Controller.Status().String()})
}

// Watch prints received packets of the category.
func (s *Shell) Watch(category byte) error {
	s.watchLock.Lock()
	defer s.watchLock.Unlock()
	if s.watched[category] {
		return nil
	}
	err := s.Controller.Register(category, orbus.HandlePacketFunc(func(ctx context.Context, pkt *orbus.Packet) {
		if s.OutputJSON {
			out, _ := json.Marshal(pkt)
			s.Shell.Println(string(out))
			return
		}
		s.Shell.Println("<< " + FormatPacket(pkt))
	}))
	if err != nil {
		return err
	}
	s.watched[category] = true
	return nil
}

// Unwatch stops printing packets of the category.
func (s *Shell) Unwatch(category byte) {
	s.watchLock.Lock()
	defer s.watchLock.Unlock()
	if s.watched[category] {
		s.Controller.Clear(category)
		delete(s.watched, category)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen && s.Config.Port != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Config.Port)
		}
		if err := s.Open(); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.Port, err)
		}
		defer s.Close()
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func packetCmdFunc(fn func(s *Shell, c *ishell.Context, pkt *orbus.Packet)) func(c *ishell.Context) {
	return MustBeOpen(func(c *ishell.Context) {
		pkt, err := ParsePacket(c.Args)
		if err != nil {
			c.Err(err)
			return
		}
		fn(ShellFrom(c), c, pkt)
	})
}

var (
	// OpenCmd opens the port.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[PORT]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 && c.Args[0] != s.Config.Port {
				s.Close()
				s.Config.Port, s.Controller = c.Args[0], nil
			}
			if err := s.Open(); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the port.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"c"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}

	// StatusCmd shows the connection status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			state, status, pending := orbus.StateClosed, orbus.StatusOK, 0
			if ctl := s.Controller; ctl != nil {
				state, status, pending = ctl.State(), ctl.Status(), ctl.Pending()
			}
			s.Print(c,
				fmt.Sprintf("state=%s status=%s pending=%d", state, status, pending),
				map[string]interface{}{"state": state.String(), "status": status.String(), "pending": pending})
		},
	}

	// ProbeCmd checks the board is alive.
	ProbeCmd = ishell.Cmd{
		Name:    "probe",
		Aliases: []string{"ping"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			s.Done(c, s.Controller.Probe(s.Config.Timeout.Duration))
		}),
	}

	// SendCmd sends a packet and waits for the reply.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "CATEGORY OPTION COMMAND [PAYLOAD-HEX]",
		Func: packetCmdFunc(func(s *Shell, c *ishell.Context, pkt *orbus.Packet) {
			s.Done(c, s.Controller.SendBatch([]*orbus.Packet{pkt}, s.Config.Timeout.Duration))
		}),
	}

	// SyncCmd sends a packet with retries.
	SyncCmd = ishell.Cmd{
		Name:    "sync",
		Aliases: []string{"sy"},
		Help:    "CATEGORY OPTION COMMAND [PAYLOAD-HEX]",
		Func: packetCmdFunc(func(s *Shell, c *ishell.Context, pkt *orbus.Packet) {
			s.Done(c, s.Controller.SendSync(pkt, s.Config.Retries, s.Config.Timeout.Duration))
		}),
	}

	// EnqueueCmd queues a packet for the next flush.
	EnqueueCmd = ishell.Cmd{
		Name:    "enqueue",
		Aliases: []string{"q"},
		Help:    "CATEGORY OPTION COMMAND [PAYLOAD-HEX]",
		Func: packetCmdFunc(func(s *Shell, c *ishell.Context, pkt *orbus.Packet) {
			s.Controller.Enqueue(pkt)
			s.Print(c, fmt.Sprintf("%d pending", s.Controller.Pending()),
				map[string]int{"pending": s.Controller.Pending()})
		}),
	}

	// FlushCmd sends queued packets.
	FlushCmd = ishell.Cmd{
		Name:    "flush",
		Aliases: []string{"f"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			s.Done(c, s.Controller.SendPending(s.Config.Timeout.Duration))
		}),
	}

	// WatchCmd prints received packets of categories.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "CATEGORY...",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			for _, arg := range c.Args {
				cat, err := ParseByte(arg)
				if err == nil {
					err = s.Watch(cat)
				}
				if err != nil {
					c.Err(err)
					return
				}
			}
		}),
	}

	// UnwatchCmd stops printing packets of categories.
	UnwatchCmd = ishell.Cmd{
		Name:    "unwatch",
		Aliases: []string{"uw"},
		Help:    "CATEGORY...",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Controller == nil {
				return
			}
			for _, arg := range c.Args {
				cat, err := ParseByte(arg)
				if err != nil {
					c.Err(err)
					return
				}
				s.Unwatch(cat)
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	conf := config.MustResolve()
	args := flag.Args()
	// a command without board access doesn't need the port
	autoOpen := len(args) == 0 || !strings.EqualFold(args[0], "ports")
	New(conf).WithAutoOpen(autoOpen).Run(args...)
}
