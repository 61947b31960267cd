// Package metrics counts relayed traffic per link direction and exports it
// to Prometheus.
package metrics

import (
	"sync/atomic"
)

// Outcome is what happened to a chunk read from a source session.
type Outcome int

const (
	OutcomeForwarded Outcome = iota
	OutcomeMutated
	OutcomeDropped
	OutcomeRejected
)

// String returns the label value of an outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeForwarded:
		return "forwarded"
	case OutcomeMutated:
		return "mutated"
	case OutcomeDropped:
		return "dropped"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of one direction's counters.
type Stats struct {
	Forwarded uint64 `json:"forwarded"`
	Mutated   uint64 `json:"mutated"`
	Dropped   uint64 `json:"dropped"`
	Rejected  uint64 `json:"rejected"`
	BytesIn   uint64 `json:"bytes_in"`
	BytesOut  uint64 `json:"bytes_out"`
}

// Messages returns the number of frames read from the source.
func (s Stats) Messages() uint64 {
	return s.Forwarded + s.Dropped + s.Rejected
}

// TrafficCount holds the counters of one relay direction. It is updated by
// the direction's loop and read concurrently by observers.
type TrafficCount struct {
	forwarded atomic.Uint64
	mutated   atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	bytesIn   atomic.Uint64
	bytesOut  atomic.Uint64
}

// NewTrafficCount creates a new TrafficCount.
func NewTrafficCount() *TrafficCount {
	return &TrafficCount{}
}

// AddIn records n bytes read from the source.
func (tc *TrafficCount) AddIn(n int) {
	tc.bytesIn.Add(uint64(n))
}

// AddOut records n bytes written to the destination outside of a message
// outcome, such as the continuation of an oversized frame.
func (tc *TrafficCount) AddOut(n int) {
	tc.bytesOut.Add(uint64(n))
}

// AddOutcome records the fate of a frame; n is the number of bytes written
// to the destination, zero unless it was forwarded.
func (tc *TrafficCount) AddOutcome(o Outcome, n int) {
	switch o {
	case OutcomeForwarded:
		tc.forwarded.Add(1)
	case OutcomeMutated:
		tc.forwarded.Add(1)
		tc.mutated.Add(1)
	case OutcomeDropped:
		tc.dropped.Add(1)
	case OutcomeRejected:
		tc.rejected.Add(1)
	}
	if n > 0 {
		tc.bytesOut.Add(uint64(n))
	}
}

// Snapshot returns the current counter values.
func (tc *TrafficCount) Snapshot() Stats {
	return Stats{
		Forwarded: tc.forwarded.Load(),
		Mutated:   tc.mutated.Load(),
		Dropped:   tc.dropped.Load(),
		Rejected:  tc.rejected.Load(),
		BytesIn:   tc.bytesIn.Load(),
		BytesOut:  tc.bytesOut.Load(),
	}
}
