package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/pkg/encoding"
)

// EnvPrefix prefixes the environment variables that override file settings,
// e.g. MESHSYNC_LOCAL_PORT.
const EnvPrefix = "MESHSYNC"

var ErrInvalidConfig = errors.New("invalid config")

// Peer is a remote retranslator to connect to at startup.
type Peer struct {
	Address string `yaml:"address" mapstructure:"address"`
	Port    uint16 `yaml:"port" mapstructure:"port"`
}

func (p Peer) String() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(int(p.Port)))
}

// Network is the configuration shared by the transport and the session.
// It is passed around by pointer and never copied into a global.
type Network struct {
	LocalAddress string `yaml:"local_address" mapstructure:"local_address"`
	LocalPort    uint16 `yaml:"local_port" mapstructure:"local_port"`
	Peers        []Peer `yaml:"peers" mapstructure:"peers"`

	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`

	// ConnectTimeout bounds an outbound dial plus its handshake, and the
	// wait for an inbound handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`

	// Strict turns protocol and application misuse into errors returned from
	// Tick. When false such items are logged and skipped.
	Strict bool `yaml:"strict" mapstructure:"strict"`

	// PeerQueue is the number of encoded frames buffered per peer. A peer
	// whose queue is full at flush time is dropped.
	PeerQueue int `yaml:"peer_queue" mapstructure:"peer_queue"`

	// MaxPayload caps the serialized size of one component or event.
	MaxPayload int `yaml:"max_payload" mapstructure:"max_payload"`

	// Serializer names the payload encoding: json, gob or native.
	Serializer string `yaml:"serializer" mapstructure:"serializer"`

	LogLevel    string `yaml:"log_level" mapstructure:"log_level"`
	MonitorAddr string `yaml:"monitor_addr" mapstructure:"monitor_addr"`
	// MonitorToken, when set, is required by every monitor endpoint.
	MonitorToken string `yaml:"monitor_token" mapstructure:"monitor_token"`
}

func Default() *Network {
	return &Network{
		LocalAddress:   "127.0.0.1",
		LocalPort:      9001,
		TickInterval:   50 * time.Millisecond,
		ConnectTimeout: 5 * time.Second,
		Strict:         false,
		PeerQueue:      256,
		MaxPayload:     math.MaxInt16,
		Serializer:     "json",
		LogLevel:       "info",
	}
}

func (c *Network) Validate() error {
	var errs []error
	if c.LocalAddress == "" {
		errs = append(errs, errors.New("local_address is required"))
	}
	if len(c.LocalAddress) > math.MaxUint8 {
		errs = append(errs, fmt.Errorf("local_address longer than %d bytes", math.MaxUint8))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout))
	}
	if c.PeerQueue <= 0 {
		errs = append(errs, fmt.Errorf("peer_queue must be positive, got %d", c.PeerQueue))
	}
	if c.MaxPayload <= 0 || c.MaxPayload > math.MaxInt16 {
		errs = append(errs, fmt.Errorf("max_payload must be in 1..%d, got %d", math.MaxInt16, c.MaxPayload))
	}
	if _, err := encoding.ByName(c.Serializer); err != nil {
		errs = append(errs, err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for i, p := range c.Peers {
		if p.Address == "" {
			errs = append(errs, fmt.Errorf("peers[%d]: address is required", i))
		}
		if p.Port == 0 {
			errs = append(errs, fmt.Errorf("peers[%d]: port is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadYAML decodes a YAML document on top of Default and validates it.
func LoadYAML(r io.Reader) (*Network, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads the YAML file at path, applies MESHSYNC_* environment
// overrides and validates the result. An empty path loads defaults plus
// environment only.
func Load(path string) (*Network, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Network
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper, d *Network) {
	v.SetDefault("local_address", d.LocalAddress)
	v.SetDefault("local_port", d.LocalPort)
	v.SetDefault("peers", d.Peers)
	v.SetDefault("tick_interval", d.TickInterval)
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("strict", d.Strict)
	v.SetDefault("peer_queue", d.PeerQueue)
	v.SetDefault("max_payload", d.MaxPayload)
	v.SetDefault("serializer", d.Serializer)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("monitor_addr", d.MonitorAddr)
	v.SetDefault("monitor_token", d.MonitorToken)
}
