package topology

import (
	"fmt"

	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement/token"
)

// Validate checks that nodes can form at least one peer link. With strict
// set, every public key must decode as a node public key.
func Validate(nodes []ValidatorNode, strict bool) error {
	if len(nodes) < 2 {
		return NewConfigError("topology.nodes", fmt.Sprintf("need at least 2 nodes, got %d", len(nodes)))
	}

	indices := make(map[int]struct{}, len(nodes))
	endpoints := make(map[string]struct{}, len(nodes))
	for i, n := range nodes {
		field := fmt.Sprintf("topology.nodes[%d]", i)
		if n.Address == "" {
			return NewConfigError(field+".address", "must not be empty")
		}
		if n.PeerPort == 0 {
			return NewConfigError(field+".peer_port", "must be set")
		}
		if n.PublicKey == "" {
			return NewConfigError(field+".public_key", "must not be empty")
		}
		if strict {
			if _, err := token.ParsePublicKey(n.PublicKey); err != nil {
				return &ConfigError{Field: field + ".public_key", Reason: "not a node public key", Err: err}
			}
		}
		if _, dup := indices[n.Index]; dup {
			return NewConfigError(field+".index", fmt.Sprintf("duplicate index %d", n.Index))
		}
		indices[n.Index] = struct{}{}
		if _, dup := endpoints[n.Endpoint()]; dup {
			return NewConfigError(field, fmt.Sprintf("duplicate endpoint %s", n.Endpoint()))
		}
		endpoints[n.Endpoint()] = struct{}{}
	}
	return nil
}
