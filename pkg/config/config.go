// Package config provides common options to set up a board connection.
package config

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/orbus.go/pkg/orbus"
	"github.com/robotalks/orbus.go/pkg/orbus/serial"
	"github.com/robotalks/orbus.go/pkg/orbus/stream"
	"github.com/robotalks/orbus.go/pkg/orbus/websocket"
)

// Transport kinds.
const (
	TransportSerial    = "serial"
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// Duration is a time.Duration which reads as text, e.g. "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// MQTTConfig configures the MQTT bridge.
type MQTTConfig struct {
	// URL of the broker, e.g. mqtt://host:1883/orbus/
	// The path is used as topic prefix. Empty disables the bridge.
	URL string `toml:"url" yaml:"url"`
	// Node identifies this board in topics, machine ID if empty.
	Node string `toml:"node" yaml:"node"`
	// Categories are published to MQTT when received.
	Categories []int `toml:"categories" yaml:"categories"`
}

// Config provides common options to set up a Controller.
type Config struct {
	// Transport is one of serial, tcp, ws.
	// If empty, it's derived from the scheme of Port.
	Transport      string     `toml:"transport" yaml:"transport"`
	Port           string     `toml:"port" yaml:"port"`
	BaudRate       int        `toml:"baud" yaml:"baud"`
	Timeout        Duration   `toml:"timeout" yaml:"timeout"`
	PollInterval   Duration   `toml:"poll_interval" yaml:"poll_interval"`
	MaxFrameLength int        `toml:"max_frame_length" yaml:"max_frame_length"`
	Retries        int        `toml:"retries" yaml:"retries"`
	FlushInterval  Duration   `toml:"flush_interval" yaml:"flush_interval"`
	MQTT           MQTTConfig `toml:"mqtt" yaml:"mqtt"`
}

var defaultConfig = Config{
	Port:           "/dev/ttyUSB0",
	BaudRate:       115200,
	Timeout:        Duration{orbus.DefaultTimeout},
	PollInterval:   Duration{orbus.DefaultPollInterval},
	MaxFrameLength: orbus.DefaultMaxFrameLength,
	Retries:        3,
	FlushInterval:  Duration{50 * time.Millisecond},
}

var configFile string

func init() {
	if val := os.Getenv("ORBUS_PORT"); val != "" {
		defaultConfig.Port = val
	}
	if val := os.Getenv("ORBUS_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.BaudRate = baud
		}
	}
	if val := os.Getenv("ORBUS_MQTT_URL"); val != "" {
		defaultConfig.MQTT.URL = val
	}
	if val := os.Getenv("ORBUS_NODE"); val != "" {
		defaultConfig.MQTT.Node = val
	}
	if val := os.Getenv("ORBUS_CONFIG"); val != "" {
		configFile = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "Config file (.toml, .yaml).")
	flag.StringVar(&defaultConfig.Transport, "transport", defaultConfig.Transport, "Transport: serial, tcp, ws.")
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Serial port, tcp://host:port or ws:// URL.")
	flag.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Baud rate.")
	flag.DurationVar(&defaultConfig.Timeout.Duration, "timeout", defaultConfig.Timeout.Duration, "Round-trip timeout.")
	flag.IntVar(&defaultConfig.Retries, "retries", defaultConfig.Retries, "Attempts of synchronous sends.")
	flag.StringVar(&defaultConfig.MQTT.URL, "mqtt-url", defaultConfig.MQTT.URL, "MQTT broker URL, empty to disable.")
	flag.StringVar(&defaultConfig.MQTT.Node, "node", defaultConfig.MQTT.Node, "Node ID in MQTT topics.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	conf.MQTT.Categories = append([]int(nil), defaultConfig.MQTT.Categories...)
	return &conf
}

// Resolve creates a Config from defaults, environment, flags
// and the config file, keys in the file take precedence.
func Resolve() (*Config, error) {
	conf := NewConfig()
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	return conf, conf.Validate()
}

// MustResolve resolves the Config and fails on error.
func MustResolve() *Config {
	conf, err := Resolve()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// LoadFile merges the file into the config.
// The format is chosen by extension.
func (c *Config) LoadFile(fn string) error {
	switch ext := strings.ToLower(filepath.Ext(fn)); ext {
	case ".toml":
		md, err := toml.DecodeFile(fn, c)
		if err != nil {
			return fmt.Errorf("load %s: %w", fn, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			glog.Warningf("%s: unknown keys %v", fn, undecoded)
		}
	case ".yaml", ".yml":
		f, err := os.Open(fn)
		if err != nil {
			return err
		}
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		decoder.KnownFields(true)
		if err = decoder.Decode(c); err != nil {
			return fmt.Errorf("load %s: %w", fn, err)
		}
	default:
		return fmt.Errorf("unknown config format %q", ext)
	}
	glog.V(1).Infof("config loaded from %s", fn)
	return nil
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port not specified")
	}
	if c.MaxFrameLength < 0 || c.MaxFrameLength > orbus.MaxFrameLength {
		return fmt.Errorf("max frame length %d out of range", c.MaxFrameLength)
	}
	for _, cat := range c.MQTT.Categories {
		if cat <= int(orbus.CategoryAlive) || cat > 0xff {
			return fmt.Errorf("invalid category %d", cat)
		}
	}
	if _, _, err := c.transportKind(); err != nil {
		return err
	}
	return nil
}

func (c *Config) transportKind() (kind, port string, err error) {
	kind, port = c.Transport, c.Port
	if u, e := url.Parse(c.Port); e == nil && u.Scheme != "" && u.Host != "" {
		switch u.Scheme {
		case "tcp":
			if kind == "" {
				kind = TransportTCP
			}
			if kind == TransportTCP {
				port = u.Host
			}
		case "ws", "wss":
			if kind == "" {
				kind = TransportWebSocket
			}
		}
	}
	if kind == "" {
		kind = TransportSerial
	}
	switch kind {
	case TransportSerial, TransportTCP, TransportWebSocket:
		return
	}
	return "", "", fmt.Errorf("unknown transport %q", kind)
}

// NewTransport creates the Transport and returns the port to open.
func (c *Config) NewTransport() (orbus.Transport, string, error) {
	kind, port, err := c.transportKind()
	if err != nil {
		return nil, "", err
	}
	switch kind {
	case TransportTCP:
		return stream.New(), port, nil
	case TransportWebSocket:
		return websocket.New(), port, nil
	}
	return serial.New(), port, nil
}

// NewController creates a Controller using current config.
func (c *Config) NewController() (*orbus.Controller, error) {
	t, port, err := c.NewTransport()
	if err != nil {
		return nil, err
	}
	ctl := orbus.NewController(t, port, c.BaudRate)
	if c.Timeout.Duration > 0 {
		ctl.Timeout = c.Timeout.Duration
	}
	if c.PollInterval.Duration > 0 {
		ctl.PollInterval = c.PollInterval.Duration
	}
	if c.MaxFrameLength > 0 {
		ctl.MaxFrameLength = c.MaxFrameLength
	}
	return ctl, nil
}

// MustNewController creates a Controller and fails on error.
func (c *Config) MustNewController() *orbus.Controller {
	ctl, err := c.NewController()
	if err != nil {
		log.Fatalln(err)
	}
	return ctl
}

// NodeID gets the node ID used in MQTT topics.
func (c *Config) NodeID() string {
	if c.MQTT.Node != "" {
		return c.MQTT.Node
	}
	return MachineID()
}

// CategoryBytes returns MQTT categories as bytes.
func (c *Config) CategoryBytes() []byte {
	cats := make([]byte, 0, len(c.MQTT.Categories))
	for _, cat := range c.MQTT.Categories {
		cats = append(cats, byte(cat))
	}
	return cats
}
