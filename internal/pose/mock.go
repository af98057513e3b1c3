package pose

import (
	"context"
	"sync"
	"time"
)

// MockEngine is a test implementation of the Engine interface.
// It allows tests to control initialization and detection outcomes.
type MockEngine struct {
	mu          sync.Mutex
	landmarks   []Landmark
	detectErr   error
	initErr     error
	initDelay   time.Duration
	detectDelay time.Duration
	initialized bool
	detectCalls int
	closed      bool
	gate        chan struct{}
}

// NewMockEngine creates a new MockEngine instance. By default it initializes
// immediately and detects the standing pose fixture.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		landmarks: StandingPoseLandmarks(),
	}
}

// SetLandmarks sets the landmarks that will be returned by Detect.
func (m *MockEngine) SetLandmarks(landmarks []Landmark) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.landmarks = landmarks
}

// SetDetectError sets the error that will be returned by Detect.
func (m *MockEngine) SetDetectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectErr = err
}

// SetInitError sets the error that will be returned by Initialize.
func (m *MockEngine) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// SetInitDelay makes Initialize sleep before completing, to simulate slow
// model loading.
func (m *MockEngine) SetInitDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initDelay = d
}

// SetDetectDelay makes Detect sleep before returning, to simulate engine
// latency.
func (m *MockEngine) SetDetectDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectDelay = d
}

// BlockDetect makes subsequent Detect calls block until the returned release
// function is called.
func (m *MockEngine) BlockDetect() (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	m.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// DetectCalls returns how many times Detect has been invoked.
func (m *MockEngine) DetectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectCalls
}

// Initialize completes after the configured delay with the configured error.
func (m *MockEngine) Initialize(ctx context.Context) error {
	m.mu.Lock()
	delay := m.initDelay
	err := m.initErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return nil
}

// Detect returns the pre-configured landmarks or error.
func (m *MockEngine) Detect(frame Frame) (*Result, error) {
	m.mu.Lock()
	m.detectCalls++
	initialized := m.initialized
	landmarks := m.landmarks
	err := m.detectErr
	delay := m.detectDelay
	gate := m.gate
	m.mu.Unlock()

	if !initialized {
		return nil, ErrEngineUninitialized
	}
	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	return NewResult(landmarks, frame.TimestampMs), nil
}

// Close is a no-op for the mock engine.
func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// StandingPoseLandmarks returns a preset landmark set representing a person
// standing upright facing the camera, centered in the frame.
func StandingPoseLandmarks() []Landmark {
	points := [NumLandmarks][2]float64{
		Nose:          {0.50, 0.12},
		LeftEyeInner:  {0.52, 0.10},
		LeftEye:       {0.53, 0.10},
		LeftEyeOuter:  {0.54, 0.10},
		RightEyeInner: {0.48, 0.10},
		RightEye:      {0.47, 0.10},
		RightEyeOuter: {0.46, 0.10},
		LeftEar:       {0.56, 0.11},
		RightEar:      {0.44, 0.11},
		MouthLeft:     {0.52, 0.14},
		MouthRight:    {0.48, 0.14},

		LeftShoulder:  {0.60, 0.25},
		RightShoulder: {0.40, 0.25},
		LeftElbow:     {0.63, 0.38},
		RightElbow:    {0.37, 0.38},
		LeftWrist:     {0.64, 0.50},
		RightWrist:    {0.36, 0.50},
		LeftPinky:     {0.65, 0.54},
		RightPinky:    {0.35, 0.54},
		LeftIndex:     {0.64, 0.55},
		RightIndex:    {0.36, 0.55},
		LeftThumb:     {0.63, 0.53},
		RightThumb:    {0.37, 0.53},

		LeftHip:   {0.56, 0.52},
		RightHip:  {0.44, 0.52},
		LeftKnee:  {0.56, 0.70},
		RightKnee: {0.44, 0.70},

		LeftAnkle:      {0.56, 0.88},
		RightAnkle:     {0.44, 0.88},
		LeftHeel:       {0.56, 0.92},
		RightHeel:      {0.44, 0.92},
		LeftFootIndex:  {0.58, 0.95},
		RightFootIndex: {0.42, 0.95},
	}

	landmarks := make([]Landmark, NumLandmarks)
	for i, p := range points {
		landmarks[i] = Landmark{
			X:          p[0],
			Y:          p[1],
			Confidence: 0.95,
			Type:       i,
		}
	}
	return landmarks
}
