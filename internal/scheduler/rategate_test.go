package scheduler

import (
	"testing"
	"time"
)

func TestRateGate_FirstCallAlwaysAdmits(t *testing.T) {
	gate := NewRateGate(time.Second / 30)

	if !gate.ShouldAdmit(1000) {
		t.Error("first call should always admit")
	}
}

func TestRateGate_ThrottlesToInterval(t *testing.T) {
	gate := NewRateGate(100 * time.Millisecond)

	if !gate.ShouldAdmit(0) {
		t.Fatal("first frame should admit")
	}
	if gate.ShouldAdmit(50) {
		t.Error("frame 50ms after admission should be rejected")
	}
	if gate.ShouldAdmit(99) {
		t.Error("frame 99ms after admission should be rejected")
	}
	if !gate.ShouldAdmit(100) {
		t.Error("frame exactly one interval after admission should admit")
	}
	if gate.ShouldAdmit(150) {
		t.Error("frame 50ms after second admission should be rejected")
	}
	if !gate.ShouldAdmit(250) {
		t.Error("frame 150ms after second admission should admit")
	}
}

func TestRateGate_AdmittedSpacing(t *testing.T) {
	// Simulate a 60fps source throttled to 1/30s: the admitted subsequence
	// must be spaced at least one interval apart.
	interval := time.Second / 30
	gate := NewRateGate(interval)

	var admitted []int64
	for i := 0; i < 300; i++ {
		ts := int64(i) * 1000 / 60
		if gate.ShouldAdmit(ts) {
			admitted = append(admitted, ts)
		}
	}

	if len(admitted) == 0 {
		t.Fatal("no frames admitted")
	}

	for i := 1; i < len(admitted); i++ {
		if gap := admitted[i] - admitted[i-1]; gap < interval.Milliseconds() {
			t.Errorf("admitted[%d]-admitted[%d] = %dms, want >= %dms",
				i, i-1, gap, interval.Milliseconds())
		}
	}

	// A 60fps source throttled to 30fps admits roughly every other frame
	if len(admitted) < 140 || len(admitted) > 151 {
		t.Errorf("admitted %d of 300 frames, expected about half", len(admitted))
	}
}

func TestRateGate_NonMonotonicTimestampAdmits(t *testing.T) {
	gate := NewRateGate(100 * time.Millisecond)

	if !gate.ShouldAdmit(1000) {
		t.Fatal("first frame should admit")
	}

	// Backdated timestamp must stay admit-eligible, never stall the gate
	if !gate.ShouldAdmit(500) {
		t.Error("out-of-order timestamp should admit")
	}

	// The gate continues from the backdated timestamp
	if gate.ShouldAdmit(550) {
		t.Error("frame 50ms after backdated admission should be rejected")
	}
	if !gate.ShouldAdmit(600) {
		t.Error("frame 100ms after backdated admission should admit")
	}
}
