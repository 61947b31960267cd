package peermanagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeJamon/xrpl-interceptor/internal/arbiter"
	"github.com/LeJamon/xrpl-interceptor/internal/fault"
	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement/metrics"
	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

// Relay holds what every link shares: the controller client, the fault
// policy and the observers. It is safe for concurrent use.
type Relay struct {
	cfg      Config
	arbiter  arbiter.Arbiter
	policy   fault.Policy
	recorder *metrics.Recorder
	events   chan<- Event
	logger   *zap.Logger
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithArbiter sets the controller consulted for every message.
func WithArbiter(a arbiter.Arbiter) RelayOption {
	return func(r *Relay) {
		r.arbiter = a
	}
}

// WithPolicy sets the fault injection policy.
func WithPolicy(p fault.Policy) RelayOption {
	return func(r *Relay) {
		r.policy = p
	}
}

// WithRecorder sets the Prometheus recorder.
func WithRecorder(m *metrics.Recorder) RelayOption {
	return func(r *Relay) {
		r.recorder = m
	}
}

// WithEvents sets the channel events are published to. Sends never block.
func WithEvents(ch chan<- Event) RelayOption {
	return func(r *Relay) {
		r.events = ch
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = l
	}
}

// NewRelay creates a relay. Without options it forwards everything as-is.
func NewRelay(cfg Config, opts ...RelayOption) *Relay {
	r := &Relay{
		cfg:     cfg,
		arbiter: arbiter.Passthrough{},
		policy:  fault.None,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// direction is one of the two forwarding loops of a link.
type direction struct {
	name    string
	src     *Session
	dst     *Session
	traffic *metrics.TrafficCount
	logger  *zap.Logger
}

func (d *direction) from() topology.ValidatorNode { return d.src.Node() }
func (d *direction) to() topology.ValidatorNode   { return d.dst.Node() }

// Link relays traffic between two validator nodes through two sessions:
// toA is connected to node A presenting B's key, toB to node B presenting
// A's key. Each direction is a single loop, so per-direction order is kept
// and each session has exactly one reader and one writer.
type Link struct {
	relay *Relay
	id    string

	toA *Session
	toB *Session

	forward  *direction // A -> B
	backward *direction // B -> A

	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	// cause is the first error that ended the link; set before done closes.
	cause error
}

// LinkStats is a snapshot of a link.
type LinkStats struct {
	ID        string        `json:"id"`
	A         string        `json:"a"`
	B         string        `json:"b"`
	Forward   metrics.Stats `json:"a_to_b"`
	Backward  metrics.Stats `json:"b_to_a"`
	StartedAt time.Time     `json:"started_at"`
	Closed    bool          `json:"closed"`
}

// Start runs the two forwarding loops of a link between the nodes behind
// toA and toB and returns immediately. The link owns both sessions from
// then on and closes them when it ends. Cancelling ctx tears the link down.
func (r *Relay) Start(ctx context.Context, toA, toB *Session) *Link {
	a, b := toA.Node(), toB.Node()
	id := fmt.Sprintf("%d-%d", a.Index, b.Index)
	logger := r.logger.With(zap.String("link", id))

	newDirection := func(src, dst *Session) *direction {
		name := fmt.Sprintf("%d->%d", src.Node().Index, dst.Node().Index)
		return &direction{
			name:    name,
			src:     src,
			dst:     dst,
			traffic: metrics.NewTrafficCount(),
			logger: logger.With(
				zap.Int("from", src.Node().Index),
				zap.Int("to", dst.Node().Index),
			),
		}
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &Link{
		relay:     r,
		id:        id,
		toA:       toA,
		toB:       toB,
		forward:   newDirection(toA, toB),
		backward:  newDirection(toB, toA),
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}

	r.recorder.LinkUp()
	logger.Info("Link established", zap.Stringer("a", a), zap.Stringer("b", b))
	emit(r.events, Event{Type: EventLinkEstablished, Link: id, From: a.Index, To: b.Index})

	g, gctx := errgroup.WithContext(lctx)
	g.Go(func() error { return l.run(gctx, l.forward) })
	g.Go(func() error { return l.run(gctx, l.backward) })

	// Blocked reads do not observe ctx; closing the sessions releases them
	// as soon as either loop ends or the link is cancelled.
	go func() {
		<-gctx.Done()
		l.closeSessions()
	}()

	go func() {
		err := g.Wait()
		cancel()
		l.cause = err
		r.recorder.LinkDown()

		if werr := l.waitErr(); werr != nil {
			logger.Warn("Link failed", zap.Error(werr))
			emit(r.events, Event{Type: EventLinkFailed, Link: id, From: a.Index, To: b.Index, Error: werr})
		} else {
			logger.Info("Link closed", zap.NamedError("cause", err))
			emit(r.events, Event{Type: EventLinkClosed, Link: id, From: a.Index, To: b.Index, Error: err})
		}
		close(l.done)
	}()

	return l
}

// ID returns the link identifier, e.g. "0-2".
func (l *Link) ID() string {
	return l.id
}

// Nodes returns the two validator nodes of the link.
func (l *Link) Nodes() (topology.ValidatorNode, topology.ValidatorNode) {
	return l.toA.Node(), l.toB.Node()
}

// Done returns a channel closed once both loops have stopped.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the link has ended. It returns nil when the link ended
// in an orderly way: a peer closed its connection, Close was called or the
// start context was cancelled.
func (l *Link) Wait() error {
	<-l.done
	return l.waitErr()
}

// Cause returns the error that ended the link, including ErrStreamClosed.
// It is nil while the link is running.
func (l *Link) Cause() error {
	select {
	case <-l.done:
		return l.cause
	default:
		return nil
	}
}

func (l *Link) waitErr() error {
	err := l.cause
	if err == nil || errors.Is(err, ErrStreamClosed) || errors.Is(err, ErrLinkClosed) {
		return nil
	}
	return &LinkError{Link: l.id, Op: "relay", Err: err}
}

// Close stops both directions and closes both sessions. It does not wait;
// use Wait or Done for that.
func (l *Link) Close() error {
	l.cancel()
	return l.closeSessions()
}

func (l *Link) closeSessions() error {
	errA := l.toA.Close()
	errB := l.toB.Close()
	if errA != nil {
		return errA
	}
	return errB
}

// Stats returns a snapshot of the link's counters.
func (l *Link) Stats() LinkStats {
	a, b := l.Nodes()
	closed := false
	select {
	case <-l.done:
		closed = true
	default:
	}
	return LinkStats{
		ID:        l.id,
		A:         a.String(),
		B:         b.String(),
		Forward:   l.forward.traffic.Snapshot(),
		Backward:  l.backward.traffic.Snapshot(),
		StartedAt: l.startedAt,
		Closed:    closed,
	}
}

// run is the forwarding loop of one direction. It relays one frame at a
// time and returns ErrStreamClosed when the source closes, ErrLinkClosed
// when the link is torn down and any other error on failure.
func (l *Link) run(ctx context.Context, d *direction) error {
	r := l.relay
	fr := newFrameReader(d.src, r.cfg.MaxFrameSize)

	// discard is set while the continuation of a frame whose head was not
	// forwarded is read off the source.
	discard := false

	for {
		if ctx.Err() != nil {
			return ErrLinkClosed
		}

		c, err := fr.next()
		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, ErrStreamClosed) {
				return ErrLinkClosed
			}
			return err
		}
		receivedAt := time.Now()
		chunk := c.data
		n := len(chunk)
		d.traffic.AddIn(n)

		// Continuation chunks follow the fate of their frame's head and are
		// neither inspected nor arbitrated.
		if !c.head {
			if discard {
				discard = !c.last
				continue
			}
			if err := d.dst.Write(chunk); err != nil {
				return err
			}
			d.traffic.AddOut(n)
			continue
		}
		discard = false

		info, err := InspectFrame(chunk)
		if err != nil {
			l.reject(d, info, n, err)
			if r.cfg.SkipUnsupported {
				discard = !c.last
				continue
			}
			return err
		}
		if info.UnknownVersion {
			d.logger.Warn("Unknown version header", zap.String("first_byte", fmt.Sprintf("0x%02x", info.FirstByte)))
		}

		v, err := l.arbitrate(ctx, d, chunk)
		if err != nil {
			return err
		}

		// Dropped messages are never delivered, so they are not delayed.
		var effect fault.Effect
		if v.drop == "" {
			effect = r.policy.Apply(fault.Direction{From: d.from().Index, To: d.to().Index})
			if effect.Drop {
				v.drop = DropByFault
			}
		}
		if v.drop != "" {
			l.drop(d, n, v.drop)
			discard = !c.last
			continue
		}

		if effect.Delay > 0 {
			if err := fault.Wait(ctx, receivedAt, effect.Delay); err != nil {
				return ErrLinkClosed
			}
			r.recorder.ObserveFaultDelay(effect.Delay)
		}

		if err := d.dst.Write(v.payload); err != nil {
			return err
		}

		outcome := metrics.OutcomeForwarded
		if v.mutated {
			outcome = metrics.OutcomeMutated
		}
		d.traffic.AddOutcome(outcome, len(v.payload))
		r.recorder.ObserveMessage(l.id, d.name, outcome, n, len(v.payload))
		emit(r.events, Event{
			Type:    EventMessageForwarded,
			Link:    l.id,
			From:    d.from().Index,
			To:      d.to().Index,
			Size:    n,
			Mutated: v.mutated,
			Delay:   effect.Delay,
		})
		d.logger.Debug("Forwarded peer message",
			zap.Int("size", n),
			zap.Int("written", len(v.payload)),
			zap.Bool("mutated", v.mutated),
			zap.Duration("delay", effect.Delay),
		)
	}
}

// verdict is the arbitration outcome for one frame: either a drop reason or
// the bytes to write.
type verdict struct {
	payload []byte
	mutated bool
	drop    string
}

// arbitrate asks the controller about a frame. Controller failures apply the
// fallback action; an error is only returned when the link is being torn
// down.
func (l *Link) arbitrate(ctx context.Context, d *direction, chunk []byte) (verdict, error) {
	r := l.relay

	req := arbiter.Request{Payload: chunk}
	switch r.cfg.IdentifyBy {
	case IdentifyByIndex:
		req.SourcePort = uint32(d.from().Index)
		req.DestPort = uint32(d.to().Index)
	default:
		req.SourcePort = uint32(d.from().PeerPort)
		req.DestPort = uint32(d.to().PeerPort)
	}

	start := time.Now()
	dec, err := r.arbiter.Decide(ctx, req)
	r.recorder.ObserveArbitration(time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			return verdict{}, ErrLinkClosed
		}
		d.logger.Warn("ControllerUnavailable",
			zap.Error(err),
			zap.Stringer("fallback", r.cfg.FallbackAction),
		)
		r.recorder.ObserveControllerUnavailable()
		emit(r.events, Event{
			Type:  EventControllerUnavailable,
			Link:  l.id,
			From:  d.from().Index,
			To:    d.to().Index,
			Size:  len(chunk),
			Error: err,
		})
		if r.cfg.FallbackAction == arbiter.ActionDrop {
			return verdict{drop: DropByFallback}, nil
		}
		return verdict{payload: chunk}, nil
	}

	switch dec.Action {
	case arbiter.ActionDrop:
		return verdict{drop: DropByController}, nil
	case arbiter.ActionMutate:
		if len(dec.Payload) == 0 {
			d.logger.Warn("Mutate decision without payload, dropping message")
			return verdict{drop: DropByController}, nil
		}
		return verdict{payload: dec.Payload, mutated: true}, nil
	case arbiter.ActionForward:
		return verdict{payload: chunk}, nil
	default:
		d.logger.Warn("Unknown controller action, forwarding", zap.Stringer("action", dec.Action))
		return verdict{payload: chunk}, nil
	}
}

func (l *Link) drop(d *direction, n int, reason string) {
	r := l.relay
	d.traffic.AddOutcome(metrics.OutcomeDropped, 0)
	r.recorder.ObserveMessage(l.id, d.name, metrics.OutcomeDropped, n, 0)
	emit(r.events, Event{
		Type:   EventMessageDropped,
		Link:   l.id,
		From:   d.from().Index,
		To:     d.to().Index,
		Size:   n,
		Reason: reason,
	})
	d.logger.Debug("Dropped peer message", zap.Int("size", n), zap.String("reason", reason))
}

func (l *Link) reject(d *direction, info FrameInfo, n int, err error) {
	r := l.relay
	d.traffic.AddOutcome(metrics.OutcomeRejected, 0)
	r.recorder.ObserveMessage(l.id, d.name, metrics.OutcomeRejected, n, 0)
	emit(r.events, Event{
		Type:  EventMessageRejected,
		Link:  l.id,
		From:  d.from().Index,
		To:    d.to().Index,
		Size:  n,
		Error: err,
	})
	d.logger.Error("Rejected peer message",
		zap.Error(err),
		zap.Bool("decompressible", info.Decompressible),
		zap.Bool("skip", r.cfg.SkipUnsupported),
	)
}
