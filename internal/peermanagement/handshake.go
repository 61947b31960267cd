package peermanagement

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement/token"
	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

// ProtocolVersion is the peer protocol requested in the Upgrade header.
const ProtocolVersion = "XRPL/2.2"

// HTTP header names for handshake.
const (
	HeaderUpgrade          = "Upgrade"
	HeaderConnection       = "Connection"
	HeaderConnectAs        = "Connect-As"
	HeaderPublicKey        = "Public-Key"
	HeaderSessionSignature = "Session-Signature"
	HeaderUserAgent        = "User-Agent"
)

const (
	// maxHeaderBlock bounds the response header block of an upgrade.
	maxHeaderBlock = 64 * 1024

	// maxRejectBody bounds how much of a rejection body is kept.
	maxRejectBody = 16 * 1024

	// drainTimeout bounds the time spent reading a rejection body.
	drainTimeout = 500 * time.Millisecond

	readChunk = 4096
)

var headerTerminator = []byte("\r\n\r\n")

// DefaultTLSConfig returns the TLS client configuration used towards
// validator nodes. Node certificates are self-signed and not verified.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
	}
}

// BuildUpgradeRequest returns the upgrade request announcing publicKey.
// Header order and spelling are fixed.
func BuildUpgradeRequest(cfg Config, publicKey string) []byte {
	var b bytes.Buffer
	b.WriteString("GET / HTTP/1.1\r\n")
	fmt.Fprintf(&b, "%s: %s\r\n", HeaderUpgrade, cfg.UpgradeProtocol)
	fmt.Fprintf(&b, "%s: Upgrade\r\n", HeaderConnection)
	fmt.Fprintf(&b, "%s: Peer\r\n", HeaderConnectAs)
	fmt.Fprintf(&b, "%s: %s\r\n", HeaderPublicKey, publicKey)
	fmt.Fprintf(&b, "%s: %s\r\n", HeaderSessionSignature, cfg.SessionSignature)
	if cfg.UserAgent != "" {
		fmt.Fprintf(&b, "%s: %s\r\n", HeaderUserAgent, cfg.UserAgent)
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// Negotiator turns a TCP connection to a validator node into an accepted
// peer Session.
type Negotiator struct {
	cfg       Config
	tlsConfig *tls.Config
	logger    *zap.Logger
}

// NewNegotiator creates a negotiator. A nil tlsConfig uses DefaultTLSConfig.
func NewNegotiator(cfg Config, tlsConfig *tls.Config, logger *zap.Logger) *Negotiator {
	if tlsConfig == nil {
		tlsConfig = DefaultTLSConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Negotiator{cfg: cfg, tlsConfig: tlsConfig, logger: logger}
}

// Connect opens a session to node, presenting the public key of as.
func (n *Negotiator) Connect(ctx context.Context, node, as topology.ValidatorNode) (*Session, error) {
	endpoint := node.Endpoint()
	logger := n.logger.With(
		zap.String("node", node.String()),
		zap.String("as", as.String()),
		zap.String("key", token.Short(as.PublicKey)),
	)

	dialer := &net.Dialer{Timeout: n.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, &ConnectionError{Endpoint: endpoint, Err: err}
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			logger.Warn("Failed to disable Nagle", zap.Error(err))
		}
	}

	hctx, cancel := context.WithTimeout(ctx, n.cfg.HandshakeTimeout)
	defer cancel()

	tlsConn := tls.Client(conn, n.tlsConfig)
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		conn.Close()
		return nil, &TLSHandshakeError{Endpoint: endpoint, Err: err}
	}

	// Plain reads and writes do not observe ctx; a deadline bounds them and
	// cancellation forces it into the past.
	deadline, _ := hctx.Deadline()
	tlsConn.SetDeadline(deadline)
	stop := context.AfterFunc(hctx, func() {
		tlsConn.SetDeadline(time.Now())
	})

	err = n.upgrade(tlsConn, endpoint, as.PublicKey, logger)
	stop()
	if err != nil {
		tlsConn.Close()
		return nil, err
	}
	tlsConn.SetDeadline(time.Time{})

	logger.Debug("Peer session established")
	return newSession(node, as, tlsConn), nil
}

func (n *Negotiator) upgrade(conn net.Conn, endpoint, publicKey string, logger *zap.Logger) error {
	if _, err := conn.Write(BuildUpgradeRequest(n.cfg, publicKey)); err != nil {
		return &HandshakeProtocolError{Endpoint: endpoint, Kind: HandshakeConnectionClosed, Err: err}
	}

	header, rest, err := readHeaderBlock(conn)
	if err != nil {
		var hpe *HandshakeProtocolError
		if errors.As(err, &hpe) {
			hpe.Endpoint = endpoint
		}
		return err
	}

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(header)), nil)
	if err != nil {
		return &HandshakeProtocolError{Endpoint: endpoint, Kind: HandshakeMalformedHeaders, Err: err}
	}
	resp.Body.Close()

	logger.Debug("Upgrade response",
		zap.Int("status", resp.StatusCode),
		zap.String("upgrade", resp.Header.Get(HeaderUpgrade)),
		zap.String("remote_key", token.Short(resp.Header.Get(HeaderPublicKey))),
	)

	if resp.StatusCode == http.StatusSwitchingProtocols {
		if len(rest) > 0 {
			return &HandshakeProtocolError{
				Endpoint: endpoint,
				Kind:     HandshakeUnexpectedTrailingData,
				Trailing: rest,
			}
		}
		return nil
	}

	body := drainBody(conn, resp.Header, rest)
	logger.Debug("Upgrade rejected", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
	return &HandshakeProtocolError{
		Endpoint:   endpoint,
		Kind:       HandshakeRejected,
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}

// readHeaderBlock reads from r until the header terminator and returns the
// header block including the terminator plus any bytes that followed it.
func readHeaderBlock(r io.Reader) ([]byte, []byte, error) {
	buf := make([]byte, 0, readChunk)
	chunk := make([]byte, readChunk)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			from := max(len(buf)-len(headerTerminator)+1, 0)
			buf = append(buf, chunk[:n]...)
			if i := bytes.Index(buf[from:], headerTerminator); i >= 0 {
				end := from + i + len(headerTerminator)
				return buf[:end], buf[end:], nil
			}
			if len(buf) > maxHeaderBlock {
				return nil, nil, &HandshakeProtocolError{
					Kind: HandshakeMalformedHeaders,
					Err:  fmt.Errorf("header block exceeds %d bytes", maxHeaderBlock),
				}
			}
			continue
		}
		if err == nil || errors.Is(err, io.EOF) {
			return nil, nil, &HandshakeProtocolError{Kind: HandshakeConnectionClosed, Body: buf}
		}
		return nil, nil, &HandshakeProtocolError{Kind: HandshakeConnectionClosed, Body: buf, Err: err}
	}
}

// drainBody collects the body of a rejected upgrade for diagnostics. It reads
// at most Content-Length bytes when given, and stops at maxRejectBody, end of
// stream or drainTimeout, whichever comes first.
func drainBody(conn net.Conn, h http.Header, have []byte) []byte {
	limit := maxRejectBody
	if cl, err := strconv.Atoi(h.Get("Content-Length")); err == nil && cl >= 0 && cl < limit {
		limit = cl
	}

	body := append([]byte(nil), have...)
	if len(body) >= limit {
		return body[:limit]
	}

	conn.SetReadDeadline(time.Now().Add(drainTimeout))
	chunk := make([]byte, readChunk)
	for len(body) < limit {
		n, err := conn.Read(chunk[:min(readChunk, limit-len(body))])
		body = append(body, chunk[:n]...)
		if err != nil || n == 0 {
			break
		}
	}
	return body
}
