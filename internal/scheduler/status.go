package scheduler

import (
	"encoding/json"
	"fmt"
)

// StatusKind enumerates the processing states observers can see.
type StatusKind int

const (
	// StatusIdle means no inference is in flight.
	StatusIdle StatusKind = iota
	// StatusProcessing means one inference is in flight.
	StatusProcessing
	// StatusError means the most recent inference (or engine initialization)
	// failed; Message carries the reason.
	StatusError
)

// String returns the wire name of the status kind.
func (k StatusKind) String() string {
	switch k {
	case StatusIdle:
		return "idle"
	case StatusProcessing:
		return "processing"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MarshalJSON encodes the kind as its string name.
func (k StatusKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON decodes a string name back into the kind.
func (k *StatusKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	switch name {
	case "idle":
		*k = StatusIdle
	case "processing":
		*k = StatusProcessing
	case "error":
		*k = StatusError
	default:
		return fmt.Errorf("unknown status kind %q", name)
	}
	return nil
}

// Status is the current processing state. Exactly one status is current at
// any time; transitions are published in the order they occur.
type Status struct {
	Kind    StatusKind `json:"state"`
	Message string     `json:"message,omitempty"`
}

// Admission is the outcome of one SubmitFrame call.
type Admission int

const (
	// Admitted means the frame was handed to the engine for inference.
	Admitted Admission = iota
	// SkippedRate means the rate gate rejected the frame.
	SkippedRate
	// SkippedBusy means an inference was already in flight.
	SkippedBusy
	// SkippedEngineNotReady means the engine has not finished initializing,
	// or initialization failed permanently.
	SkippedEngineNotReady
)

// String returns a diagnostic name for the admission outcome.
func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case SkippedRate:
		return "skipped-rate"
	case SkippedBusy:
		return "skipped-busy"
	case SkippedEngineNotReady:
		return "skipped-engine-not-ready"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}
