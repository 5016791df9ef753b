// Package health implements the queue-health signal behind GET /healthz's
// "degraded" status, an addition described in DESIGN.md. Structurally this is the
// teacher's internal/circuitbreaker.Breaker — an atomic tripped flag plus a
// recorded reason string, checked against a threshold — repurposed from a
// one-shot "stop the load test" breaker into a continuously re-evaluated
// queue-saturation gauge: instead of tripping permanently once the error
// rate crosses a parsed condition, it reports the live ratio of queue depth
// to capacity against a configured fraction every time /healthz is polled.
package health

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Breaker tracks whether the async queue is saturated enough to report
// "degraded" rather than "ok". Unlike the teacher's load-test breaker this
// is not sticky: it reflects current queue pressure, recomputed on every
// Check, because a health probe answering "degraded" forever after one
// spike would be useless to an operator polling it.
type Breaker struct {
	threshold float64 // fraction of capacity considered saturated, e.g. 0.5
	degraded  atomic.Bool
	tripCount atomic.Int64

	mu     sync.Mutex
	reason string
}

// New builds a Breaker that reports degraded once queue_depth/capacity
// reaches or exceeds threshold (a fraction in (0, 1]).
func New(threshold float64) *Breaker {
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Breaker{threshold: threshold}
}

// Check evaluates current queue pressure and updates the degraded flag.
// Returns the up-to-date degraded state.
func (b *Breaker) Check(queueDepth, queueCapacity int) bool {
	if queueCapacity <= 0 {
		b.setDegraded(false, "")
		return false
	}

	ratio := float64(queueDepth) / float64(queueCapacity)
	if ratio >= b.threshold {
		reason := fmt.Sprintf("queue depth %d/%d (%.0f%%) at or above degrade threshold %.0f%%",
			queueDepth, queueCapacity, ratio*100, b.threshold*100)
		b.setDegraded(true, reason)
		return true
	}

	b.setDegraded(false, "")
	return false
}

func (b *Breaker) setDegraded(degraded bool, reason string) {
	wasDegraded := b.degraded.Swap(degraded)
	if degraded && !wasDegraded {
		b.tripCount.Add(1)
	}

	b.mu.Lock()
	b.reason = reason
	b.mu.Unlock()
}

// IsDegraded returns the state as of the last Check call.
func (b *Breaker) IsDegraded() bool {
	return b.degraded.Load()
}

// Reason returns the explanation for the current degraded state, empty if
// not degraded.
func (b *Breaker) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// TripCount returns how many times the breaker has transitioned into
// degraded since creation — useful for operators watching for flapping.
func (b *Breaker) TripCount() int64 {
	return b.tripCount.Load()
}
