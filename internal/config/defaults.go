package config

import (
	"github.com/spf13/viper"

	"github.com/LeJamon/xrpl-interceptor/internal/arbiter"
	"github.com/LeJamon/xrpl-interceptor/internal/logging"
	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement"
)

// setDefaults sets every default value. Keys without a default are not
// picked up from the environment.
func setDefaults(v *viper.Viper) {
	// Proxy
	v.SetDefault("proxy.connect_timeout", peermanagement.DefaultConnectTimeout)
	v.SetDefault("proxy.handshake_timeout", peermanagement.DefaultHandshakeTimeout)
	v.SetDefault("proxy.upgrade_protocol", peermanagement.DefaultUpgradeProtocol)
	v.SetDefault("proxy.session_signature", peermanagement.DefaultSessionSignature)
	v.SetDefault("proxy.user_agent", "")
	v.SetDefault("proxy.max_frame_size", peermanagement.DefaultMaxFrameSize)
	v.SetDefault("proxy.skip_unsupported", false)
	v.SetDefault("proxy.fallback_action", arbiter.ActionForward.String())
	v.SetDefault("proxy.handshake_concurrency", peermanagement.DefaultHandshakeConcurrency)
	v.SetDefault("proxy.identify_by", peermanagement.IdentifyByPort.String())
	v.SetDefault("proxy.event_buffer", peermanagement.DefaultEventBufferSize)

	// Controller
	client := arbiter.DefaultClientConfig()
	v.SetDefault("controller.address", client.Address)
	v.SetDefault("controller.timeout", client.Timeout)
	v.SetDefault("controller.max_recv_msg_size", client.MaxRecvMsgSize)
	v.SetDefault("controller.announce_nodes", false)
	v.SetDefault("controller.fetch_topology", false)

	// Topology
	v.SetDefault("topology.host", "127.0.0.1")
	v.SetDefault("topology.file", "")
	v.SetDefault("topology.strict_keys", false)

	// Faults
	v.SetDefault("faults.jitter", 0)
	v.SetDefault("faults.drop_probability", 0.0)
	v.SetDefault("faults.seed", 0)

	// Status
	v.SetDefault("status.address", "")

	// Log
	log := logging.DefaultConfig()
	v.SetDefault("log.level", log.Level)
	v.SetDefault("log.format", log.Format)
	v.SetDefault("log.file", log.File)
	v.SetDefault("log.max_size_mb", log.MaxSizeMB)
	v.SetDefault("log.max_backups", log.MaxBackups)
	v.SetDefault("log.max_age_days", log.MaxAgeDays)
	v.SetDefault("log.compress", log.Compress)
}
