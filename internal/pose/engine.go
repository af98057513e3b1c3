package pose

import (
	"context"
	"errors"
)

// Engine failure classes. Per-call failures (ErrInvalidInput,
// ErrProcessingFailed) are recoverable; the engine stays usable for
// subsequent frames. ErrEngineUninitialized means Initialize has not
// completed (or failed) and Detect cannot run.
var (
	ErrEngineUninitialized = errors.New("pose: engine not initialized")
	ErrInvalidInput        = errors.New("pose: invalid input frame")
	ErrProcessingFailed    = errors.New("pose: processing failed")
)

// Frame is one captured image buffer handed to the engine for a single
// inference call. Data is JPEG-encoded and must be treated as read-only;
// the engine must not retain it past the Detect call that delivered it.
type Frame struct {
	Data        []byte
	Width       int
	Height      int
	TimestampMs int64
}

// Engine defines the interface for pose estimation implementations.
type Engine interface {
	// Initialize prepares the engine for detection. It is one-time and
	// idempotent: concurrent or repeated calls after a success are no-ops.
	// Initialization may take arbitrarily long and may fail permanently.
	Initialize(ctx context.Context) error

	// Detect analyzes a single frame and returns the detected pose.
	// Returns ErrEngineUninitialized if Initialize has not succeeded.
	Detect(frame Frame) (*Result, error)

	// Close releases any resources held by the engine.
	Close() error
}

// Config holds configuration options for pose estimation engines.
type Config struct {
	// ModelPath is the engine asset identifier (model file or service
	// script), passed through opaquely to the engine.
	ModelPath string

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.5,
	}
}
