package arbiter

import (
	"fmt"
	"net"
	"time"
)

// ClientConfig holds configuration for the controller client.
type ClientConfig struct {
	// Address is the controller's gRPC address (e.g., "[::1]:50051").
	Address string

	// Timeout bounds every SendPacket call. The relay loop waiting on the
	// call is blocked for at most this long.
	Timeout time.Duration

	// MaxRecvMsgSize is the maximum message size in bytes the client can receive.
	MaxRecvMsgSize int
}

// DefaultClientConfig returns a ClientConfig with default values.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Address:        "[::1]:50051",
		Timeout:        5 * time.Second,
		MaxRecvMsgSize: 4 * 1024 * 1024,
	}
}

// Validate validates the client configuration.
func (c ClientConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}

	if _, port, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	} else if port == "" {
		return fmt.Errorf("port cannot be empty")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.MaxRecvMsgSize <= 0 {
		return fmt.Errorf("max_recv_msg_size must be positive")
	}

	return nil
}
