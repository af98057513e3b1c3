package scheduler

import (
	"sync"
	"time"
)

// Tracker keeps running throughput and latency counters. Writes happen only
// from the inference-completion and admission contexts; Snapshot may be
// called concurrently from any observer context and never returns a torn
// tuple.
type Tracker struct {
	mu            sync.Mutex
	processed     uint64
	skipped       uint64
	avgLatencyMs  float64
	lastLatency   time.Duration
	lastCompleted time.Time
}

// Snapshot is a consistent read of the tracker state. Total is always
// Processed + Skipped.
type Snapshot struct {
	Processed     uint64
	Skipped       uint64
	Total         uint64
	AvgLatencyMs  float64
	LastLatency   time.Duration
	LastCompleted time.Time
}

// NewTracker creates a zeroed Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordProcessed counts one completed inference and folds its duration into
// the running mean using the exact incremental form
// avg' = (avg*(n-1) + d) / n, which stays stable for large n.
func (t *Tracker) RecordProcessed(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.processed++
	n := float64(t.processed)
	ms := float64(d) / float64(time.Millisecond)
	t.avgLatencyMs = (t.avgLatencyMs*(n-1) + ms) / n
	t.lastLatency = d
	t.lastCompleted = time.Now()
}

// RecordSkipped counts one frame that did not result in a completed
// inference, for any reason.
func (t *Tracker) RecordSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped++
}

// Reset zeroes all counters and the running mean.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.processed = 0
	t.skipped = 0
	t.avgLatencyMs = 0
	t.lastLatency = 0
	t.lastCompleted = time.Time{}
}

// Snapshot returns an atomic copy of the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Snapshot{
		Processed:     t.processed,
		Skipped:       t.skipped,
		Total:         t.processed + t.skipped,
		AvgLatencyMs:  t.avgLatencyMs,
		LastLatency:   t.lastLatency,
		LastCompleted: t.lastCompleted,
	}
}
