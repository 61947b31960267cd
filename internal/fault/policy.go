// Package fault injects adverse network conditions into relayed traffic:
// artificial delay, partitions and random loss.
package fault

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// AnyNode matches every node index in a Rule.
const AnyNode = -1

// Direction identifies one relay direction of a peer link by node index.
type Direction struct {
	From int
	To   int
}

// Effect is what a policy applies to one message after arbitration.
type Effect struct {
	Delay time.Duration
	Drop  bool
}

// Policy maps a direction to the effect applied to its messages. Policies
// are read-only while links are running and must be safe for concurrent use.
type Policy interface {
	Apply(d Direction) Effect
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(d Direction) Effect

// Apply calls f(d).
func (f PolicyFunc) Apply(d Direction) Effect {
	return f(d)
}

// None applies no fault.
var None Policy = PolicyFunc(func(Direction) Effect { return Effect{} })

// Rule delays messages travelling From -> To. AnyNode matches every index.
type Rule struct {
	From  int
	To    int
	Delay time.Duration
}

func (r Rule) matches(d Direction) bool {
	return (r.From == AnyNode || r.From == d.From) && (r.To == AnyNode || r.To == d.To)
}

// Static is a delay table. The first matching rule wins; no match means no
// delay.
type Static struct {
	rules []Rule
}

// NewStatic creates a delay table from rules.
func NewStatic(rules ...Rule) *Static {
	return &Static{rules: append([]Rule(nil), rules...)}
}

// Apply returns the delay of the first matching rule.
func (s *Static) Apply(d Direction) Effect {
	for _, r := range s.rules {
		if r.matches(d) {
			return Effect{Delay: r.Delay}
		}
	}
	return Effect{}
}

// Partition drops every message between nodes of different groups. Nodes
// not listed in any group are reachable from everywhere.
type Partition struct {
	group map[int]int
}

// NewPartition creates a partition policy from groups of node indices.
func NewPartition(groups [][]int) *Partition {
	p := &Partition{group: make(map[int]int)}
	for gi, g := range groups {
		for _, n := range g {
			p.group[n] = gi
		}
	}
	return p
}

// Apply drops the message if From and To are in different groups.
func (p *Partition) Apply(d Direction) Effect {
	gf, okf := p.group[d.From]
	gt, okt := p.group[d.To]
	return Effect{Drop: okf && okt && gf != gt}
}

// randSource is a mutex-guarded *rand.Rand shared by the randomised policies.
type randSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newRandSource(seed uint64) *randSource {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &randSource{r: rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))}
}

func (s *randSource) float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *randSource) int64n(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Int64N(n)
}

// Jitter adds a uniformly distributed extra delay in [0, Max).
type Jitter struct {
	max time.Duration
	rnd *randSource
}

// NewJitter creates a jitter policy. A zero seed picks a random one.
func NewJitter(max time.Duration, seed uint64) *Jitter {
	return &Jitter{max: max, rnd: newRandSource(seed)}
}

// Apply returns a random delay below the configured maximum.
func (j *Jitter) Apply(Direction) Effect {
	if j.max <= 0 {
		return Effect{}
	}
	return Effect{Delay: time.Duration(j.rnd.int64n(int64(j.max)))}
}

// RandomDrop drops each message with probability P.
type RandomDrop struct {
	p   float64
	rnd *randSource
}

// NewRandomDrop creates a loss policy. A zero seed picks a random one.
func NewRandomDrop(p float64, seed uint64) *RandomDrop {
	return &RandomDrop{p: p, rnd: newRandSource(seed)}
}

// Apply drops the message with the configured probability.
func (r *RandomDrop) Apply(Direction) Effect {
	if r.p <= 0 {
		return Effect{}
	}
	return Effect{Drop: r.p >= 1 || r.rnd.float64() < r.p}
}

// Chain combines policies: delays add up, any drop drops.
type Chain []Policy

// Apply evaluates every policy in order.
func (c Chain) Apply(d Direction) Effect {
	var out Effect
	for _, p := range c {
		e := p.Apply(d)
		out.Delay += e.Delay
		out.Drop = out.Drop || e.Drop
	}
	return out
}

// Wait blocks until delay has elapsed since receivedAt. It returns at once
// when that point has already passed, and returns ctx.Err() if ctx ends first.
func Wait(ctx context.Context, receivedAt time.Time, delay time.Duration) error {
	remaining := delay - time.Since(receivedAt)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
