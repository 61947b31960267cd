// Package config loads the interceptor configuration from defaults, a TOML
// file and XRPLI_ environment variables, and turns it into the settings of
// each component.
package config

import (
	"time"

	"github.com/LeJamon/xrpl-interceptor/internal/arbiter"
	"github.com/LeJamon/xrpl-interceptor/internal/fault"
	"github.com/LeJamon/xrpl-interceptor/internal/logging"
	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement"
	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

// Config represents the complete interceptor configuration.
type Config struct {
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Controller ControllerConfig `mapstructure:"controller"`
	Topology   TopologyConfig   `mapstructure:"topology"`
	Faults     FaultsConfig     `mapstructure:"faults"`
	Status     StatusConfig     `mapstructure:"status"`
	Log        logging.Config   `mapstructure:"log"`

	configPath string
}

// ProxyConfig configures the peer sessions and relay loops.
type ProxyConfig struct {
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	UpgradeProtocol      string        `mapstructure:"upgrade_protocol"`
	SessionSignature     string        `mapstructure:"session_signature"`
	UserAgent            string        `mapstructure:"user_agent"`
	MaxFrameSize         int           `mapstructure:"max_frame_size"`
	SkipUnsupported      bool          `mapstructure:"skip_unsupported"`
	FallbackAction       string        `mapstructure:"fallback_action"`
	HandshakeConcurrency int           `mapstructure:"handshake_concurrency"`
	IdentifyBy           string        `mapstructure:"identify_by"`
	EventBuffer          int           `mapstructure:"event_buffer"`
}

// ControllerConfig configures the arbitration controller client. An empty
// address disables the controller; every message is then forwarded as-is.
type ControllerConfig struct {
	Address        string        `mapstructure:"address"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRecvMsgSize int           `mapstructure:"max_recv_msg_size"`

	// AnnounceNodes streams the node list to the controller at startup.
	AnnounceNodes bool `mapstructure:"announce_nodes"`

	// FetchTopology derives the node ports from the controller's network
	// configuration.
	FetchTopology bool `mapstructure:"fetch_topology"`
}

// Enabled reports whether a controller is configured.
func (c ControllerConfig) Enabled() bool {
	return c.Address != ""
}

// TopologyConfig describes the validator nodes, either inline or in a YAML
// file.
type TopologyConfig struct {
	Host       string                   `mapstructure:"host"`
	File       string                   `mapstructure:"file"`
	StrictKeys bool                     `mapstructure:"strict_keys"`
	Nodes      []topology.ValidatorNode `mapstructure:"nodes"`
}

// DelayRule delays messages travelling From -> To. -1 matches any node.
type DelayRule struct {
	From  int           `mapstructure:"from"`
	To    int           `mapstructure:"to"`
	Delay time.Duration `mapstructure:"delay"`
}

// FaultsConfig configures fault injection.
type FaultsConfig struct {
	Delays          []DelayRule   `mapstructure:"delays"`
	Jitter          time.Duration `mapstructure:"jitter"`
	DropProbability float64       `mapstructure:"drop_probability"`
	Partitions      [][]int       `mapstructure:"partitions"`
	Seed            uint64        `mapstructure:"seed"`
}

// StatusConfig configures the HTTP status surface. An empty address
// disables it.
type StatusConfig struct {
	Address string `mapstructure:"address"`
}

// GetConfigPath returns the path of the loaded configuration file, if any.
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// PeerConfig returns the peermanagement configuration.
func (c *Config) PeerConfig() (peermanagement.Config, error) {
	fallback, err := arbiter.ParseAction(c.Proxy.FallbackAction)
	if err != nil {
		return peermanagement.Config{}, &topology.ConfigError{Field: "proxy.fallback_action", Reason: "invalid", Err: err}
	}
	identifyBy, err := peermanagement.ParseIdentifyBy(c.Proxy.IdentifyBy)
	if err != nil {
		return peermanagement.Config{}, &topology.ConfigError{Field: "proxy.identify_by", Reason: "invalid", Err: err}
	}

	return peermanagement.NewConfig(
		peermanagement.WithConnectTimeout(c.Proxy.ConnectTimeout),
		peermanagement.WithHandshakeTimeout(c.Proxy.HandshakeTimeout),
		peermanagement.WithUpgradeProtocol(c.Proxy.UpgradeProtocol),
		peermanagement.WithSessionSignature(c.Proxy.SessionSignature),
		peermanagement.WithUserAgent(c.Proxy.UserAgent),
		peermanagement.WithMaxFrameSize(c.Proxy.MaxFrameSize),
		peermanagement.WithSkipUnsupported(c.Proxy.SkipUnsupported),
		peermanagement.WithFallbackAction(fallback),
		peermanagement.WithIdentifyBy(identifyBy),
		peermanagement.WithHandshakeConcurrency(c.Proxy.HandshakeConcurrency),
		peermanagement.WithEventBufferSize(c.Proxy.EventBuffer),
	), nil
}

// ClientConfig returns the controller client configuration.
func (c *Config) ClientConfig() arbiter.ClientConfig {
	return arbiter.ClientConfig{
		Address:        c.Controller.Address,
		Timeout:        c.Controller.Timeout,
		MaxRecvMsgSize: c.Controller.MaxRecvMsgSize,
	}
}

// FaultPolicy builds the fault injection policy. Partitions reported by the
// controller are added to the configured ones.
func (c *Config) FaultPolicy(extraPartitions ...[]int) fault.Policy {
	var chain fault.Chain

	if len(c.Faults.Delays) > 0 {
		rules := make([]fault.Rule, len(c.Faults.Delays))
		for i, d := range c.Faults.Delays {
			rules[i] = fault.Rule{From: d.From, To: d.To, Delay: d.Delay}
		}
		chain = append(chain, fault.NewStatic(rules...))
	}
	if c.Faults.Jitter > 0 {
		chain = append(chain, fault.NewJitter(c.Faults.Jitter, c.Faults.Seed))
	}
	if groups := append(append([][]int(nil), c.Faults.Partitions...), extraPartitions...); len(groups) > 0 {
		chain = append(chain, fault.NewPartition(groups))
	}
	if c.Faults.DropProbability > 0 {
		// Loss draws from its own stream so it is not correlated with jitter.
		seed := c.Faults.Seed
		if seed != 0 {
			seed++
		}
		chain = append(chain, fault.NewRandomDrop(c.Faults.DropProbability, seed))
	}

	switch len(chain) {
	case 0:
		return fault.None
	case 1:
		return chain[0]
	default:
		return chain
	}
}

// Nodes returns the configured validator nodes, read from the topology file
// when one is set, with addresses and indices filled in. They are not
// validated; see topology.Validate.
func (c *Config) Nodes() ([]topology.ValidatorNode, error) {
	if c.Topology.File != "" {
		return topology.LoadFile(c.Topology.File, c.Topology.Host)
	}
	return topology.Normalize(c.Topology.Nodes, c.Topology.Host), nil
}
