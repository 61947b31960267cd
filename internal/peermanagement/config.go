package peermanagement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeJamon/xrpl-interceptor/internal/arbiter"
	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement/message"
)

// Default configuration values.
const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second

	// DefaultMaxFrameSize is the largest frame relayed as a single message.
	// Longer frames are relayed as a head chunk and continuation chunks.
	DefaultMaxFrameSize = 64 * 1024

	// MinMaxFrameSize keeps a whole frame header in the head chunk.
	MinMaxFrameSize = message.HeaderSizeCompressed

	DefaultHandshakeConcurrency = 4
	DefaultEventBufferSize      = 256

	DefaultUpgradeProtocol  = ProtocolVersion
	DefaultSessionSignature = "a"
)

// IdentifyBy selects what the relay reports to the controller as the
// source and destination of a message.
type IdentifyBy int

const (
	// IdentifyByPort sends the nodes' peer ports.
	IdentifyByPort IdentifyBy = iota
	// IdentifyByIndex sends the nodes' indices in the topology.
	IdentifyByIndex
)

// String returns the configuration name of the mode.
func (i IdentifyBy) String() string {
	switch i {
	case IdentifyByPort:
		return "port"
	case IdentifyByIndex:
		return "index"
	default:
		return fmt.Sprintf("identify_by(%d)", int(i))
	}
}

// ParseIdentifyBy parses "port" or "index".
func ParseIdentifyBy(s string) (IdentifyBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "port":
		return IdentifyByPort, nil
	case "index":
		return IdentifyByIndex, nil
	default:
		return 0, fmt.Errorf("unknown identify_by %q", s)
	}
}

// Config holds the configuration of the interception layer.
type Config struct {
	// Handshake
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	UpgradeProtocol  string
	SessionSignature string
	UserAgent        string

	// Relay
	MaxFrameSize int

	// SkipUnsupported keeps a direction running after a compressed frame.
	// When false the direction, and with it the link, is torn down.
	SkipUnsupported bool

	// FallbackAction is applied when the controller is unavailable.
	FallbackAction arbiter.Action

	IdentifyBy IdentifyBy

	// Supervisor
	HandshakeConcurrency int
	EventBufferSize      int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:       DefaultConnectTimeout,
		HandshakeTimeout:     DefaultHandshakeTimeout,
		UpgradeProtocol:      DefaultUpgradeProtocol,
		SessionSignature:     DefaultSessionSignature,
		MaxFrameSize:         DefaultMaxFrameSize,
		FallbackAction:       arbiter.ActionForward,
		IdentifyBy:           IdentifyByPort,
		HandshakeConcurrency: DefaultHandshakeConcurrency,
		EventBufferSize:      DefaultEventBufferSize,
	}
}

// Option is a functional option for configuring the interception layer.
type Option func(*Config)

// NewConfig returns the default configuration with opts applied.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithConnectTimeout sets the TCP connect timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ConnectTimeout = d
	}
}

// WithHandshakeTimeout sets the timeout for the TLS and upgrade exchange.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = d
	}
}

// WithUpgradeProtocol sets the protocol announced in the Upgrade header.
func WithUpgradeProtocol(p string) Option {
	return func(c *Config) {
		c.UpgradeProtocol = p
	}
}

// WithSessionSignature sets the Session-Signature header value.
func WithSessionSignature(sig string) Option {
	return func(c *Config) {
		c.SessionSignature = sig
	}
}

// WithUserAgent sets the User-Agent header of the upgrade request. Empty
// omits the header.
func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.UserAgent = ua
	}
}

// WithMaxFrameSize sets the largest frame relayed as a single message.
func WithMaxFrameSize(n int) Option {
	return func(c *Config) {
		c.MaxFrameSize = n
	}
}

// WithSkipUnsupported keeps directions alive after unsupported frames.
func WithSkipUnsupported(skip bool) Option {
	return func(c *Config) {
		c.SkipUnsupported = skip
	}
}

// WithFallbackAction sets the action used while the controller is unavailable.
func WithFallbackAction(a arbiter.Action) Option {
	return func(c *Config) {
		c.FallbackAction = a
	}
}

// WithIdentifyBy selects how message endpoints are reported to the controller.
func WithIdentifyBy(id IdentifyBy) Option {
	return func(c *Config) {
		c.IdentifyBy = id
	}
}

// WithHandshakeConcurrency bounds the number of links set up in parallel.
func WithHandshakeConcurrency(n int) Option {
	return func(c *Config) {
		c.HandshakeConcurrency = n
	}
}

// WithEventBufferSize sets the capacity of the supervisor's event channel.
func WithEventBufferSize(n int) Option {
	return func(c *Config) {
		c.EventBufferSize = n
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return errors.New("ConnectTimeout must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("HandshakeTimeout must be positive")
	}
	if c.UpgradeProtocol == "" {
		return errors.New("UpgradeProtocol cannot be empty")
	}
	if c.MaxFrameSize < MinMaxFrameSize || c.MaxFrameSize > DefaultMaxFrameSize {
		return errors.New("MaxFrameSize must be in [10, 65536]")
	}
	if c.FallbackAction != arbiter.ActionForward && c.FallbackAction != arbiter.ActionDrop {
		return errors.New("FallbackAction must be forward or drop")
	}
	if c.HandshakeConcurrency <= 0 {
		return errors.New("HandshakeConcurrency must be positive")
	}
	if c.EventBufferSize < 0 {
		return errors.New("EventBufferSize cannot be negative")
	}
	return nil
}
