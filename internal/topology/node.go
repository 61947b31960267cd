// Package topology describes the validator nodes the interceptor stands
// between and derives the peer links it has to build.
package topology

import (
	"fmt"
	"net"
	"strconv"
)

// ValidatorNode is one participant of the proxied validator network.
// Nodes are immutable for the lifetime of a run.
type ValidatorNode struct {
	// Index is the node's position in the network, starting at 0.
	Index int `yaml:"index" mapstructure:"index"`

	// Address is the host the node's peer port listens on.
	Address string `yaml:"address" mapstructure:"address"`

	// PeerPort is the node's peer protocol port.
	PeerPort uint16 `yaml:"peer_port" mapstructure:"peer_port"`

	// PublicKey is the node's validation public key. The interceptor
	// presents it to the other side of every link the node is part of.
	PublicKey string `yaml:"public_key" mapstructure:"public_key"`

	// Auxiliary ports and key material, forwarded to the controller only.
	WSPublicPort         uint16 `yaml:"ws_public_port" mapstructure:"ws_public_port"`
	WSAdminPort          uint16 `yaml:"ws_admin_port" mapstructure:"ws_admin_port"`
	RPCPort              uint16 `yaml:"rpc_port" mapstructure:"rpc_port"`
	Status               string `yaml:"status" mapstructure:"status"`
	ValidationKey        string `yaml:"validation_key" mapstructure:"validation_key"`
	ValidationPrivateKey string `yaml:"validation_private_key" mapstructure:"validation_private_key"`
	ValidationSeed       string `yaml:"validation_seed" mapstructure:"validation_seed"`
}

// Endpoint returns the node's peer endpoint as "host:port".
func (n ValidatorNode) Endpoint() string {
	return net.JoinHostPort(n.Address, strconv.Itoa(int(n.PeerPort)))
}

// String returns a short human readable form of the node.
func (n ValidatorNode) String() string {
	return fmt.Sprintf("node%d(%s)", n.Index, n.Endpoint())
}

// Pair is an unordered pair of validator nodes. A comes first in the node
// list, so for a normalized list A has the lower index.
type Pair struct {
	A ValidatorNode
	B ValidatorNode
}

// ID returns a stable identifier for the pair, e.g. "0-2".
func (p Pair) ID() string {
	return fmt.Sprintf("%d-%d", p.A.Index, p.B.Index)
}

// Pairs returns every unordered pair of nodes in list order: (0,1), (0,2),
// ..., (1,2), ... N nodes yield N*(N-1)/2 pairs.
func Pairs(nodes []ValidatorNode) []Pair {
	if len(nodes) < 2 {
		return nil
	}
	pairs := make([]Pair, 0, LinkCount(len(nodes)))
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			pairs = append(pairs, Pair{A: nodes[i], B: nodes[j]})
		}
	}
	return pairs
}

// LinkCount returns the number of peer links for n nodes.
func LinkCount(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// RelayTaskCount returns the number of relay loops for n nodes, two per link.
func RelayTaskCount(n int) int {
	return 2 * LinkCount(n)
}
