package orchestrator

import (
	"sync"
	"time"
)

// rateGate enforces a minimum interval between successive LLM calls for one
// agent (spec.md §4.2: "excess is rejected with RateLimited (not queued)").
//
// A token-bucket library models refill-over-time and would queue or burst;
// the spec wants an outright reject with no queueing, so this is a single
// timestamp compare instead.
type rateGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newRateGate(interval time.Duration) *rateGate {
	return &rateGate{interval: interval}
}

// Allow reports whether a call may proceed now, and records it if so.
func (g *rateGate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	if !g.last.IsZero() && now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	return true
}
