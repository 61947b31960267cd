package peermanagement

import (
	"errors"
	"fmt"

	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement/message"
)

// Sentinel errors for link establishment and relaying.
var (
	// Handshake errors, matched by HandshakeProtocolError.Kind.
	ErrHandshakeConnectionClosed = errors.New("connection closed during handshake")
	ErrMalformedHeaders          = errors.New("malformed handshake headers")
	ErrUnexpectedTrailingData    = errors.New("unexpected data after handshake headers")
	ErrHandshakeRejected         = errors.New("handshake rejected")

	// ErrStreamClosed is a zero-length read on an established session: the
	// remote closed the connection. It ends a link in an orderly way.
	ErrStreamClosed = errors.New("stream closed")

	// ErrUnsupportedMessage matches every UnsupportedMessageError.
	ErrUnsupportedMessage = errors.New("unsupported message")

	ErrLinkClosed = errors.New("link closed")
	ErrNoLinks    = errors.New("no peer links established")
)

// ConnectionError is a failure to open the transport connection to a node.
type ConnectionError struct {
	Endpoint string
	Err      error
}

// Error returns the error message.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TLSHandshakeError is a failure of the encrypted transport handshake.
type TLSHandshakeError struct {
	Endpoint string
	Err      error
}

// Error returns the error message.
func (e *TLSHandshakeError) Error() string {
	return fmt.Sprintf("tls handshake with %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *TLSHandshakeError) Unwrap() error {
	return e.Err
}

// HandshakeKind classifies a HandshakeProtocolError.
type HandshakeKind int

const (
	HandshakeConnectionClosed HandshakeKind = iota
	HandshakeMalformedHeaders
	HandshakeUnexpectedTrailingData
	HandshakeRejected
)

// String returns the string representation of HandshakeKind.
func (k HandshakeKind) String() string {
	switch k {
	case HandshakeConnectionClosed:
		return "connection_closed"
	case HandshakeMalformedHeaders:
		return "malformed_headers"
	case HandshakeUnexpectedTrailingData:
		return "unexpected_trailing_data"
	case HandshakeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func (k HandshakeKind) sentinel() error {
	switch k {
	case HandshakeConnectionClosed:
		return ErrHandshakeConnectionClosed
	case HandshakeMalformedHeaders:
		return ErrMalformedHeaders
	case HandshakeUnexpectedTrailingData:
		return ErrUnexpectedTrailingData
	case HandshakeRejected:
		return ErrHandshakeRejected
	default:
		return nil
	}
}

// HandshakeProtocolError is a failure of the peer upgrade exchange.
type HandshakeProtocolError struct {
	Endpoint string
	Kind     HandshakeKind

	// StatusCode is set for HandshakeRejected.
	StatusCode int

	// Body holds the drained response body of a rejection.
	Body []byte

	// Trailing holds the bytes that followed the header block of an
	// accepted upgrade.
	Trailing []byte

	Err error
}

// Error returns the error message.
func (e *HandshakeProtocolError) Error() string {
	msg := fmt.Sprintf("handshake with %s: %s", e.Endpoint, e.Kind)
	switch e.Kind {
	case HandshakeRejected:
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	case HandshakeUnexpectedTrailingData:
		msg += fmt.Sprintf(" (%d bytes, are the peer slots full?)", len(e.Trailing))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *HandshakeProtocolError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *HandshakeProtocolError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// UnsupportedMessageError is returned for a frame the relay refuses to
// forward, currently compressed frames.
type UnsupportedMessageError struct {
	FirstByte byte

	// MessageType, PayloadSize and UncompressedSize are filled in when the
	// chunk starts with a decodable frame header.
	MessageType      message.MessageType
	PayloadSize      uint32
	UncompressedSize uint32
}

// Error returns the error message.
func (e *UnsupportedMessageError) Error() string {
	if e.MessageType != message.TypeUnknown {
		return fmt.Sprintf("compressed message %s (first byte 0x%02x, %d bytes, %d uncompressed)",
			e.MessageType, e.FirstByte, e.PayloadSize, e.UncompressedSize)
	}
	return fmt.Sprintf("compressed message (first byte 0x%02x)", e.FirstByte)
}

// Is reports whether target is ErrUnsupportedMessage.
func (e *UnsupportedMessageError) Is(target error) bool {
	return target == ErrUnsupportedMessage
}

// LinkError wraps an error with the link and direction it occurred on.
type LinkError struct {
	Link string
	Op   string
	Err  error
}

// Error returns the error message.
func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s: %s: %v", e.Link, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *LinkError) Unwrap() error {
	return e.Err
}
