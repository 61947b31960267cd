package cli

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/LeJamon/xrpl-interceptor/internal/config"
	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement"
	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

// closedPort returns a loopback port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func writeConfig(t *testing.T, ports ...int) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("[controller]\naddress = \"\"\n\n[proxy]\nconnect_timeout = \"500ms\"\n\n")
	for i, p := range ports {
		fmt.Fprintf(&buf, "[[topology.nodes]]\npeer_port = %d\npublic_key = \"nKey%d\"\n\n", p, i)
	}
	path := filepath.Join(t.TempDir(), "xrpl-interceptor.toml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestLinksCommand(t *testing.T) {
	path := writeConfig(t, 51235, 51236, 51237)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"links", "--conf", path})
	require.NoError(t, rootCmd.Execute())

	text := out.String()
	assert.Contains(t, text, "Nodes: 3  Links: 3  Relay tasks: 6")
	assert.Contains(t, text, "0-1")
	assert.Contains(t, text, "1-2")
	assert.Contains(t, text, "127.0.0.1:51237")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "xrpl-interceptor version 0.1.0-dev")
	assert.Contains(t, out.String(), "XRPL/2.2")
}

func TestRun_NoLinks(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, closedPort(t), closedPort(t)))
	require.NoError(t, err)

	err = run(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, peermanagement.ErrNoLinks)

	var ce *peermanagement.ConnectionError
	assert.ErrorAs(t, err, &ce)
}

func TestRun_InvalidTopology(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, 51235))
	require.NoError(t, err)

	err = run(context.Background(), cfg, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, topology.ErrConfig)
}
