package config

import (
	"fmt"
	"net"

	"github.com/LeJamon/xrpl-interceptor/internal/fault"
	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

// ValidateConfig performs validation on the complete configuration. Every
// error it returns matches topology.ErrConfig.
func ValidateConfig(config *Config) error {
	peer, err := config.PeerConfig()
	if err != nil {
		return err
	}
	if err := peer.Validate(); err != nil {
		return &topology.ConfigError{Field: "proxy", Reason: "invalid", Err: err}
	}

	if config.Controller.Enabled() {
		if err := config.ClientConfig().Validate(); err != nil {
			return &topology.ConfigError{Field: "controller", Reason: "invalid", Err: err}
		}
	}
	if config.Controller.FetchTopology && !config.Controller.Enabled() {
		return topology.NewConfigError("controller.fetch_topology", "requires controller.address")
	}

	if err := validateTopology(&config.Topology); err != nil {
		return err
	}
	if err := validateFaults(&config.Faults); err != nil {
		return err
	}

	if config.Status.Address != "" {
		if _, _, err := net.SplitHostPort(config.Status.Address); err != nil {
			return &topology.ConfigError{Field: "status.address", Reason: "invalid", Err: err}
		}
	}

	if err := config.Log.Validate(); err != nil {
		return &topology.ConfigError{Field: "log", Reason: "invalid", Err: err}
	}
	return nil
}

func validateTopology(t *TopologyConfig) error {
	if t.File != "" && len(t.Nodes) > 0 {
		return topology.NewConfigError("topology", "set either file or nodes, not both")
	}
	if t.Host == "" {
		return topology.NewConfigError("topology.host", "must not be empty")
	}
	return nil
}

func validateFaults(f *FaultsConfig) error {
	for i, d := range f.Delays {
		field := fmt.Sprintf("faults.delays[%d]", i)
		if d.From < fault.AnyNode || d.To < fault.AnyNode {
			return topology.NewConfigError(field, "node index must be -1 or a node index")
		}
		if d.Delay < 0 {
			return topology.NewConfigError(field+".delay", "cannot be negative")
		}
	}
	if f.Jitter < 0 {
		return topology.NewConfigError("faults.jitter", "cannot be negative")
	}
	if f.DropProbability < 0 || f.DropProbability > 1 {
		return topology.NewConfigError("faults.drop_probability", "must be in [0, 1]")
	}

	seen := make(map[int]int)
	for gi, group := range f.Partitions {
		for _, n := range group {
			if n < 0 {
				return topology.NewConfigError(fmt.Sprintf("faults.partitions[%d]", gi), "negative node index")
			}
			if prev, ok := seen[n]; ok && prev != gi {
				return topology.NewConfigError(fmt.Sprintf("faults.partitions[%d]", gi),
					fmt.Sprintf("node %d is already in partition %d", n, prev))
			}
			seen[n] = gi
		}
	}
	return nil
}
