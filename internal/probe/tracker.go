// Package probe correlates ping requests with their pong replies.
package probe

import (
	"sort"
	"sync"
	"time"
)

// Tracker keeps one pending probe per node and the last measured round trip.
type Tracker struct {
	mu        sync.Mutex
	pending   map[string]time.Time
	latencies map[string]time.Duration
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		pending:   make(map[string]time.Time),
		latencies: make(map[string]time.Duration),
	}
}

// Start records that a probe to id left at now. A probe already pending for
// id is replaced; its reply, if it ever comes, is attributed to this one.
func (t *Tracker) Start(id string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[id] = now
}

// Complete matches a reply from id. It returns the elapsed time since the
// pending probe started and stores it as the node's latency. ok is false
// when nothing was pending.
func (t *Tracker) Complete(id string, now time.Time) (elapsed time.Duration, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	started, ok := t.pending[id]
	if !ok {
		return 0, false
	}
	delete(t.pending, id)

	elapsed = now.Sub(started)
	t.latencies[id] = elapsed
	return elapsed, true
}

// Cancel drops the pending probe for id if it is still the one that started
// at started. A newer probe to the same node is left alone. The last known
// latency is kept.
func (t *Tracker) Cancel(id string, started time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at, ok := t.pending[id]; ok && at.Equal(started) {
		delete(t.pending, id)
	}
}

// Pending returns the start time of the outstanding probe for id
func (t *Tracker) Pending(id string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	started, ok := t.pending[id]
	return started, ok
}

// Latency returns the last measured round trip for id
func (t *Tracker) Latency(id string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.latencies[id]
	return d, ok
}

// Latencies returns a copy of every known round trip
func (t *Tracker) Latencies() map[string]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]time.Duration, len(t.latencies))
	for id, d := range t.latencies {
		out[id] = d
	}
	return out
}

// ExpirePending drops probes that have waited longer than ttl and returns
// their ids, sorted. A ttl of zero or less keeps every pending probe.
func (t *Tracker) ExpirePending(ttl time.Duration, now time.Time) []string {
	if ttl <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []string
	for id, started := range t.pending {
		if now.Sub(started) > ttl {
			expired = append(expired, id)
			delete(t.pending, id)
		}
	}
	sort.Strings(expired)
	return expired
}

// Forget clears both pending and completed state for the given ids
func (t *Tracker) Forget(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		delete(t.pending, id)
		delete(t.latencies, id)
	}
}
