package peermanagement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

// Supervisor builds a link for every unordered pair of validator nodes and
// runs them until they end. A failing link never affects the others.
type Supervisor struct {
	cfg        Config
	nodes      []topology.ValidatorNode
	negotiator *Negotiator
	relay      *Relay
	events     chan Event
	logger     *zap.Logger

	mu       sync.RWMutex
	links    map[string]*Link
	failures map[string]error
}

// NewSupervisor creates a supervisor for nodes. The relay options configure
// the arbiter, fault policy, recorder and logger shared by every link.
func NewSupervisor(cfg Config, nodes []topology.ValidatorNode, opts ...RelayOption) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	events := make(chan Event, cfg.EventBufferSize)

	relay := NewRelay(cfg, opts...)
	base := relay.logger
	relay.logger = base.Named("link")
	relay.events = events

	return &Supervisor{
		cfg:        cfg,
		nodes:      append([]topology.ValidatorNode(nil), nodes...),
		negotiator: NewNegotiator(cfg, nil, base.Named("handshake")),
		relay:      relay,
		events:     events,
		logger:     base.Named("supervisor"),
		links:      make(map[string]*Link),
		failures:   make(map[string]error),
	}, nil
}

// Events returns the channel events are published on. Events are dropped
// when it is not drained.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Run establishes every link, with at most HandshakeConcurrency pairs in
// flight, and blocks until all established links have ended. Cancelling ctx
// tears all links down.
//
// It returns an error wrapping ErrNoLinks when no link could be established,
// otherwise the combined handshake and relay failures, or nil when every
// link ended in an orderly way.
func (s *Supervisor) Run(ctx context.Context) error {
	pairs := topology.Pairs(s.nodes)
	s.logger.Info("Establishing peer links",
		zap.Int("nodes", len(s.nodes)),
		zap.Int("links", len(pairs)),
		zap.Int("relay_tasks", topology.RelayTaskCount(len(s.nodes))),
	)

	var g errgroup.Group
	g.SetLimit(s.cfg.HandshakeConcurrency)
	for _, p := range pairs {
		g.Go(func() error {
			s.establish(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	links := s.Links()
	failures := s.handshakeFailures(pairs)
	if len(links) == 0 {
		err := fmt.Errorf("%w (%d pairs)", ErrNoLinks, len(pairs))
		return multierr.Combine(append([]error{err}, failures...)...)
	}

	s.logger.Info("Peer links running",
		zap.Int("established", len(links)),
		zap.Int("failed", len(failures)),
	)

	errs := multierr.Combine(failures...)
	for _, l := range links {
		if err := l.Wait(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// establish opens both sessions of a pair and starts its link. Failures
// are recorded and reported, never returned.
func (s *Supervisor) establish(ctx context.Context, p topology.Pair) {
	id := p.ID()

	toA, err := s.connect(ctx, p.A, p.B)
	if err != nil {
		s.fail(id, p, err)
		return
	}
	toB, err := s.connect(ctx, p.B, p.A)
	if err != nil {
		toA.Close()
		s.fail(id, p, err)
		return
	}

	link := s.relay.Start(ctx, toA, toB)

	s.mu.Lock()
	s.links[id] = link
	s.mu.Unlock()
}

func (s *Supervisor) connect(ctx context.Context, node, as topology.ValidatorNode) (*Session, error) {
	sess, err := s.negotiator.Connect(ctx, node, as)
	if err != nil {
		s.relay.recorder.ObserveHandshake(handshakeResult(err))
		return nil, err
	}
	s.relay.recorder.ObserveHandshake("ok")
	return sess, nil
}

func (s *Supervisor) fail(id string, p topology.Pair, err error) {
	err = &LinkError{Link: id, Op: "handshake", Err: err}

	s.logger.Warn("Link handshake failed", zap.String("link", id), zap.Error(err))
	emit(s.events, Event{Type: EventLinkFailed, Link: id, From: p.A.Index, To: p.B.Index, Error: err})

	s.mu.Lock()
	s.failures[id] = err
	s.mu.Unlock()
}

func (s *Supervisor) handshakeFailures(pairs []topology.Pair) []error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var errs []error
	for _, p := range pairs {
		if err, ok := s.failures[p.ID()]; ok {
			errs = append(errs, err)
		}
	}
	return errs
}

// handshakeResult returns the metrics label of a handshake failure.
func handshakeResult(err error) string {
	var (
		connErr *ConnectionError
		tlsErr  *TLSHandshakeError
		hsErr   *HandshakeProtocolError
	)
	switch {
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &tlsErr):
		return "tls"
	case errors.As(err, &hsErr):
		return hsErr.Kind.String()
	default:
		return "error"
	}
}

// Links returns the established links in pair order.
func (s *Supervisor) Links() []*Link {
	s.mu.RLock()
	defer s.mu.RUnlock()

	links := make([]*Link, 0, len(s.links))
	for _, p := range topology.Pairs(s.nodes) {
		if l, ok := s.links[p.ID()]; ok {
			links = append(links, l)
		}
	}
	return links
}

// Link returns the link with the given ID.
func (s *Supervisor) Link(id string) (*Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[id]
	return l, ok
}

// Failures returns the handshake failures by link ID.
func (s *Supervisor) Failures() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]error, len(s.failures))
	for id, err := range s.failures {
		out[id] = err
	}
	return out
}

// Snapshot returns the stats of every established link in pair order.
func (s *Supervisor) Snapshot() []LinkStats {
	links := s.Links()
	stats := make([]LinkStats, 0, len(links))
	for _, l := range links {
		stats = append(stats, l.Stats())
	}
	return stats
}

// ActiveLinks returns the number of links still relaying.
func (s *Supervisor) ActiveLinks() int {
	n := 0
	for _, l := range s.Links() {
		select {
		case <-l.Done():
		default:
			n++
		}
	}
	return n
}

// Close tears down every link.
func (s *Supervisor) Close() error {
	var errs error
	for _, l := range s.Links() {
		errs = multierr.Append(errs, l.Close())
	}
	return errs
}
