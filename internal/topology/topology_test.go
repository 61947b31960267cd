package topology

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNodes(n int) []ValidatorNode {
	nodes := make([]ValidatorNode, n)
	for i := range nodes {
		nodes[i] = ValidatorNode{
			Index:     i,
			Address:   "127.0.0.1",
			PeerPort:  uint16(60000 + i),
			PublicKey: "key" + string(rune('A'+i)),
		}
	}
	return nodes
}

// TestPairs tests that every unordered pair is produced once, in order
func TestPairs(t *testing.T) {
	tests := []struct {
		nodes int
		links int
		tasks int
	}{
		{0, 0, 0},
		{1, 0, 0},
		{2, 1, 2},
		{3, 3, 6},
		{5, 10, 20},
	}

	for _, tt := range tests {
		pairs := Pairs(testNodes(tt.nodes))
		assert.Len(t, pairs, tt.links)
		assert.Equal(t, tt.links, LinkCount(tt.nodes))
		assert.Equal(t, tt.tasks, RelayTaskCount(tt.nodes))
	}

	pairs := Pairs(testNodes(3))
	ids := []string{pairs[0].ID(), pairs[1].ID(), pairs[2].ID()}
	assert.Equal(t, []string{"0-1", "0-2", "1-2"}, ids)
	for _, p := range pairs {
		assert.Less(t, p.A.Index, p.B.Index)
	}
}

// TestNormalize_ExplicitIndices tests that nodes listed out of index order
// still pair with the lower index first
func TestNormalize_ExplicitIndices(t *testing.T) {
	nodes := Normalize([]ValidatorNode{
		{Index: 2, PeerPort: 60002},
		{Index: 0, PeerPort: 60000},
		{Index: 1, PeerPort: 60001, Address: "10.0.0.2"},
	}, "127.0.0.1")

	require.Len(t, nodes, 3)
	for i, n := range nodes {
		assert.Equal(t, i, n.Index)
		assert.Equal(t, uint16(60000+i), n.PeerPort)
	}
	assert.Equal(t, "127.0.0.1", nodes[0].Address)
	assert.Equal(t, "10.0.0.2", nodes[1].Address)

	var ids []string
	for _, p := range Pairs(nodes) {
		ids = append(ids, p.ID())
	}
	assert.Equal(t, []string{"0-1", "0-2", "1-2"}, ids)
}

func TestNormalize_ImplicitIndices(t *testing.T) {
	nodes := Normalize([]ValidatorNode{{PeerPort: 60005}, {PeerPort: 60003}}, "h")
	assert.Equal(t, 0, nodes[0].Index)
	assert.Equal(t, uint16(60005), nodes[0].PeerPort)
	assert.Equal(t, 1, nodes[1].Index)
}

func TestValidatorNode_Endpoint(t *testing.T) {
	n := ValidatorNode{Index: 2, Address: "::1", PeerPort: 51235}
	assert.Equal(t, "[::1]:51235", n.Endpoint())
	assert.Equal(t, "node2([::1]:51235)", n.String())
}

// TestValidate tests topology validation failures surface as ConfigError
func TestValidate(t *testing.T) {
	require.NoError(t, Validate(testNodes(3), false))

	tests := []struct {
		name   string
		mutate func([]ValidatorNode) []ValidatorNode
		field  string
	}{
		{"too_few", func(n []ValidatorNode) []ValidatorNode { return n[:1] }, "topology.nodes"},
		{"no_address", func(n []ValidatorNode) []ValidatorNode { n[1].Address = ""; return n }, "topology.nodes[1].address"},
		{"no_port", func(n []ValidatorNode) []ValidatorNode { n[0].PeerPort = 0; return n }, "topology.nodes[0].peer_port"},
		{"no_key", func(n []ValidatorNode) []ValidatorNode { n[2].PublicKey = ""; return n }, "topology.nodes[2].public_key"},
		{"dup_index", func(n []ValidatorNode) []ValidatorNode { n[2].Index = 0; return n }, "topology.nodes[2].index"},
		{"dup_endpoint", func(n []ValidatorNode) []ValidatorNode { n[2].PeerPort = n[0].PeerPort; return n }, "topology.nodes[2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.mutate(testNodes(3)), false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidate_StrictKeys(t *testing.T) {
	err := Validate(testNodes(2), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "not a node public key")
}

func TestParseFile(t *testing.T) {
	data := []byte(`
host: 10.0.0.5
nodes:
  - peer_port: 60000
    public_key: keyA
  - peer_port: 60001
    public_key: keyB
    address: 10.0.0.9
`)
	nodes, err := ParseFile(data, "127.0.0.1")
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, 0, nodes[0].Index)
	assert.Equal(t, "10.0.0.5", nodes[0].Address)
	assert.Equal(t, 1, nodes[1].Index)
	assert.Equal(t, "10.0.0.9", nodes[1].Address)
	assert.Equal(t, uint16(60001), nodes[1].PeerPort)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes:\n  - peer_port: 1\n    public_key: k\n"), 0644))

	nodes, err := LoadFile(path, "127.0.0.1")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "127.0.0.1", nodes[0].Address)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.ErrorIs(t, err, ErrConfig)

	_, err = ParseFile([]byte("nodes: [unterminated"), "")
	assert.ErrorIs(t, err, ErrConfig)
}

// TestFromNetwork tests deriving nodes from the controller's port bases
func TestFromNetwork(t *testing.T) {
	known := testNodes(3)
	network := Network{
		BasePortPeer:    60000,
		BasePortWS:      61000,
		BasePortWSAdmin: 62000,
		BasePortRPC:     63000,
		NumberOfNodes:   3,
	}

	nodes, err := FromNetwork("192.168.0.1", network, known)
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	assert.Equal(t, uint16(60002), nodes[2].PeerPort)
	assert.Equal(t, uint16(61002), nodes[2].WSPublicPort)
	assert.Equal(t, uint16(62002), nodes[2].WSAdminPort)
	assert.Equal(t, uint16(63002), nodes[2].RPCPort)
	assert.Equal(t, "192.168.0.1", nodes[2].Address)
	assert.Equal(t, known[2].PublicKey, nodes[2].PublicKey)
}

func TestFromNetwork_Errors(t *testing.T) {
	_, err := FromNetwork("h", Network{BasePortPeer: 60000}, testNodes(2))
	assert.ErrorIs(t, err, ErrConfig)

	_, err = FromNetwork("h", Network{BasePortPeer: 60000, NumberOfNodes: 3}, testNodes(2))
	assert.ErrorIs(t, err, ErrConfig)

	_, err = FromNetwork("h", Network{BasePortPeer: 65535, NumberOfNodes: 2}, testNodes(2))
	assert.ErrorIs(t, err, ErrConfig)
}
