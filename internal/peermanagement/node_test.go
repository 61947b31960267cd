package peermanagement

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

const upgradeOK = "HTTP/1.1 101 Switching Protocols\r\nConnection: Upgrade\r\nUpgrade: XRPL/2.2\r\nConnect-As: Peer\r\n\r\n"

var (
	certOnce sync.Once
	testCert tls.Certificate
)

// selfSignedCert returns a certificate shared by every fake node.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	certOnce.Do(func() {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(1),
			Subject:      pkix.Name{CommonName: "rippled"},
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(24 * time.Hour),
			KeyUsage:     x509.KeyUsageDigitalSignature,
			ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		}
		der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
		require.NoError(t, err)

		testCert = tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	})
	return testCert
}

// peerConn is a connection accepted by a fake node after the upgrade.
type peerConn struct {
	net.Conn
	r       *bufio.Reader
	request *http.Request
}

func (c *peerConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// fakeNode plays a validator node: it accepts TLS connections, records the
// upgrade request and answers with a canned response.
type fakeNode struct {
	t        *testing.T
	node     topology.ValidatorNode
	ln       net.Listener
	response string

	mu    sync.Mutex
	conns map[string]*peerConn // by presented public key
	ready chan *peerConn
}

func newFakeNode(t *testing.T, index int, response string) *fakeNode {
	t.Helper()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{selfSignedCert(t)},
	})
	require.NoError(t, err)

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	f := &fakeNode{
		t: t,
		node: topology.ValidatorNode{
			Index:     index,
			Address:   host,
			PeerPort:  uint16(port),
			PublicKey: "nKey" + strconv.Itoa(index),
		},
		ln:       ln,
		response: response,
		conns:    make(map[string]*peerConn),
		ready:    make(chan *peerConn, 16),
	}
	t.Cleanup(func() { ln.Close() })

	go f.serve()
	return f
}

func (f *fakeNode) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeNode) handle(conn net.Conn) {
	r := bufio.NewReader(conn)
	req, err := http.ReadRequest(r)
	if err != nil {
		conn.Close()
		return
	}

	if f.response == "" {
		conn.Close()
		return
	}
	if _, err := conn.Write([]byte(f.response)); err != nil {
		conn.Close()
		return
	}
	if len(f.response) < 12 || f.response[9:12] != "101" {
		conn.Close()
		return
	}

	pc := &peerConn{Conn: conn, r: r, request: req}
	f.mu.Lock()
	f.conns[req.Header.Get(HeaderPublicKey)] = pc
	f.mu.Unlock()
	f.ready <- pc
}

// conn waits for the connection on which the interceptor presented the key
// of peer.
func (f *fakeNode) conn(peer *fakeNode) *peerConn {
	f.t.Helper()

	var pc *peerConn
	require.Eventually(f.t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		pc = f.conns[peer.node.PublicKey]
		return pc != nil
	}, 5*time.Second, 5*time.Millisecond)
	return pc
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.HandshakeTimeout = 2 * time.Second
	return cfg
}
