// Package scheduler implements the frame-admission and asynchronous-inference
// scheduler: it decides frame-by-frame whether to submit, throttle, or drop
// work, keeps a single inference in flight, tracks throughput metrics, and
// publishes results and status transitions to observers without ever blocking
// the frame producer.
package scheduler

import (
	"log"
	"time"
)

// RateGate throttles frame admission to a target interval, independent of the
// native capture rate. It is a pure throttle: it knows nothing about engine
// or slot availability.
//
// Not safe for concurrent use; ShouldAdmit must only be called from the
// producer context.
type RateGate struct {
	intervalMs     int64
	lastAdmittedMs int64
	admittedAny    bool
}

// NewRateGate creates a gate with the given target interval between admitted
// frames.
func NewRateGate(interval time.Duration) *RateGate {
	return &RateGate{
		intervalMs: interval.Milliseconds(),
	}
}

// ShouldAdmit reports whether a frame captured at nowMs may proceed, and on
// admission remembers nowMs as the last admitted timestamp.
//
// The first call always admits. A timestamp earlier than the last admitted
// one indicates out-of-order delivery; the frame stays admit-eligible so the
// gate can never stall indefinitely, but the anomaly is logged.
func (g *RateGate) ShouldAdmit(nowMs int64) bool {
	if !g.admittedAny {
		g.admittedAny = true
		g.lastAdmittedMs = nowMs
		return true
	}

	if nowMs < g.lastAdmittedMs {
		log.Printf("rategate: non-monotonic timestamp %d after %d", nowMs, g.lastAdmittedMs)
		g.lastAdmittedMs = nowMs
		return true
	}

	if nowMs-g.lastAdmittedMs >= g.intervalMs {
		g.lastAdmittedMs = nowMs
		return true
	}

	return false
}
