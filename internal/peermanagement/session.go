package peermanagement

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

// Session is an accepted peer connection to one validator node. The node
// sees it as coming from role, the peer whose key was presented.
//
// Reads and writes are serialized independently: the relay loop reading a
// session never contends with the opposite loop writing it, and Close may be
// called at any time from any goroutine.
type Session struct {
	node topology.ValidatorNode
	role topology.ValidatorNode

	conn net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeCh chan struct{}
	closed  atomic.Bool
}

func newSession(node, role topology.ValidatorNode, conn net.Conn) *Session {
	return &Session{
		node:    node,
		role:    role,
		conn:    conn,
		closeCh: make(chan struct{}),
	}
}

// Node returns the validator node at the other end of the session.
func (s *Session) Node() topology.ValidatorNode {
	return s.node
}

// Read reads up to len(p) bytes. A zero-length read, or end of stream,
// returns ErrStreamClosed; reads after Close return ErrLinkClosed.
func (s *Session) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if s.closed.Load() {
		return 0, ErrLinkClosed
	}

	n, err := s.conn.Read(p)
	if n > 0 {
		// Surface the error on the next call so the bytes are not lost.
		return n, nil
	}
	switch {
	case s.closed.Load():
		return 0, ErrLinkClosed
	case err == nil, errors.Is(err, io.EOF):
		return 0, ErrStreamClosed
	default:
		return 0, err
	}
}

// Write writes all of p.
func (s *Session) Write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return ErrLinkClosed
	}

	for len(p) > 0 {
		n, err := s.conn.Write(p)
		if err != nil {
			if s.closed.Load() {
				return ErrLinkClosed
			}
			return err
		}
		p = p[n:]
	}
	return nil
}

// Done returns a channel closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

// Close closes the session. It is safe to call more than once; blocked
// reads and writes return ErrLinkClosed.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.closeCh)
	return s.conn.Close()
}
