package scheduler

import "sync/atomic"

// Slot is the single in-flight inference slot. At most one inference runs at
// a time; a second acquisition attempt while busy is rejected rather than
// queued, so the caller can count the frame as skipped.
type Slot struct {
	busy atomic.Bool
}

// TryAcquire transitions the slot to busy. It returns false without blocking
// if an inference is already in flight.
func (s *Slot) TryAcquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

// Release transitions the slot back to free. It must be called exactly once
// per successful TryAcquire, on completion or failure of the inference, and
// before any completion notification is delivered so a new submission can be
// accepted immediately after observers hear about this one.
func (s *Slot) Release() {
	s.busy.Store(false)
}

// Busy reports whether an inference is currently in flight.
func (s *Slot) Busy() bool {
	return s.busy.Load()
}
