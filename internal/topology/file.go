package topology

import (
	"cmp"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// File is the on-disk topology description produced by the orchestrator.
//
//	host: 127.0.0.1
//	nodes:
//	  - peer_port: 60000
//	    public_key: n9KjTKEaHJ12Kuon5PDZ7fQAo5ExZ6cKH4h3L8q6m9YhoYqeBDho
type File struct {
	Host  string          `yaml:"host"`
	Nodes []ValidatorNode `yaml:"nodes"`
}

// LoadFile reads a YAML topology file. Nodes without an address get the
// file's host (or defaultHost), nodes without an explicit index get their
// position in the list.
func LoadFile(path, defaultHost string) ([]ValidatorNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "topology.file", Reason: "cannot read " + path, Err: err}
	}
	return ParseFile(data, defaultHost)
}

// ParseFile parses YAML topology content.
func ParseFile(data []byte, defaultHost string) ([]ValidatorNode, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigError{Field: "topology.file", Reason: "malformed YAML", Err: err}
	}

	host := f.Host
	if host == "" {
		host = defaultHost
	}
	return Normalize(f.Nodes, host), nil
}

// Normalize fills in missing addresses and indices and orders the nodes by
// index.
func Normalize(nodes []ValidatorNode, host string) []ValidatorNode {
	explicit := false
	for _, n := range nodes {
		if n.Index != 0 {
			explicit = true
			break
		}
	}

	out := make([]ValidatorNode, len(nodes))
	for i, n := range nodes {
		if n.Address == "" {
			n.Address = host
		}
		if !explicit {
			n.Index = i
		}
		out[i] = n
	}
	slices.SortStableFunc(out, func(a, b ValidatorNode) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}

// Network is the controller's view of the validator network: port bases,
// node count and partition groupings.
type Network struct {
	BasePortPeer    uint32
	BasePortWS      uint32
	BasePortWSAdmin uint32
	BasePortRPC     uint32
	NumberOfNodes   uint32
	Partitions      [][]uint32
}

// FromNetwork builds the node list from a controller network description.
// Node i listens on BasePortPeer+i; its public key is taken from the known
// node with the same index.
func FromNetwork(host string, n Network, known []ValidatorNode) ([]ValidatorNode, error) {
	if n.NumberOfNodes == 0 {
		return nil, NewConfigError("controller.number_of_nodes", "must be positive")
	}

	byIndex := make(map[int]ValidatorNode, len(known))
	for _, k := range known {
		byIndex[k.Index] = k
	}

	nodes := make([]ValidatorNode, 0, n.NumberOfNodes)
	for i := 0; i < int(n.NumberOfNodes); i++ {
		k, ok := byIndex[i]
		if !ok || k.PublicKey == "" {
			return nil, NewConfigError(fmt.Sprintf("topology.nodes[%d].public_key", i), "no key for controller node")
		}

		peer, err := offsetPort("base_port_peer", n.BasePortPeer, i)
		if err != nil {
			return nil, err
		}
		node := k
		node.Index = i
		node.Address = host
		node.PeerPort = peer
		if n.BasePortWS != 0 {
			if node.WSPublicPort, err = offsetPort("base_port_ws", n.BasePortWS, i); err != nil {
				return nil, err
			}
		}
		if n.BasePortWSAdmin != 0 {
			if node.WSAdminPort, err = offsetPort("base_port_ws_admin", n.BasePortWSAdmin, i); err != nil {
				return nil, err
			}
		}
		if n.BasePortRPC != 0 {
			if node.RPCPort, err = offsetPort("base_port_rpc", n.BasePortRPC, i); err != nil {
				return nil, err
			}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func offsetPort(field string, base uint32, i int) (uint16, error) {
	p := uint64(base) + uint64(i)
	if base == 0 || p > 65535 {
		return 0, NewConfigError("controller."+field, fmt.Sprintf("port %d out of range for node %d", p, i))
	}
	return uint16(p), nil
}
