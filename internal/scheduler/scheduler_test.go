package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/natyam/internal/pose"
)

func newTestScheduler(t *testing.T, engine pose.Engine) *Scheduler {
	t.Helper()
	s := New(Config{Engine: engine, TargetInterval: time.Second / 30})
	t.Cleanup(s.Stop)
	return s
}

// readyScheduler returns a scheduler whose engine finished initializing.
func readyScheduler(t *testing.T, engine pose.Engine) *Scheduler {
	t.Helper()
	s := newTestScheduler(t, engine)
	if err := s.Reinitialize(context.Background()); err != nil {
		t.Fatalf("Reinitialize() error = %v", err)
	}
	return s
}

func testFrame(ts int64) pose.Frame {
	return pose.Frame{Data: []byte{0xff, 0xd8}, Width: 640, Height: 480, TimestampMs: ts}
}

func TestScheduler_RejectsBeforeInitialization(t *testing.T) {
	s := newTestScheduler(t, pose.NewMockEngine())

	if got := s.SubmitFrame(testFrame(0)); got != SkippedEngineNotReady {
		t.Errorf("SubmitFrame before init = %v, want %v", got, SkippedEngineNotReady)
	}

	snap := s.Metrics()
	if snap.Skipped != 1 || snap.Processed != 0 {
		t.Errorf("metrics = %+v, want 1 skipped", snap)
	}
}

func TestScheduler_ThrottledCaptureScenario(t *testing.T) {
	// 100 frames at a simulated 60fps capture rate, target interval 1/30s,
	// engine always succeeds: about half the frames are admitted, every
	// admitted frame completes, and the final status is idle.
	engine := pose.NewMockEngine()
	s := readyScheduler(t, engine)

	admitted := 0
	for i := 0; i < 100; i++ {
		ts := int64(i) * 1000 / 60
		outcome := s.SubmitFrame(testFrame(ts))

		if outcome == Admitted {
			admitted++
			// Wait for completion so the busy slot never interferes with
			// the rate-gate half of the scenario
			want := uint64(admitted)
			waitFor(t, func() bool { return s.Metrics().Processed == want })
		}

		snap := s.Metrics()
		if snap.Total != snap.Processed+snap.Skipped {
			t.Fatalf("frame %d: total invariant violated: %+v", i, snap)
		}
	}

	if admitted < 49 || admitted > 51 {
		t.Errorf("admitted = %d, want about 50", admitted)
	}

	snap := s.Metrics()
	if snap.Processed != uint64(admitted) {
		t.Errorf("processed = %d, want %d (every admitted frame completes)", snap.Processed, admitted)
	}
	if snap.Total != 100 {
		t.Errorf("total = %d, want 100", snap.Total)
	}
	if snap.Skipped != 100-uint64(admitted) {
		t.Errorf("skipped = %d, want %d", snap.Skipped, 100-uint64(admitted))
	}

	waitFor(t, func() bool {
		status, ok := s.StatusUpdates().Latest()
		return ok && status.Kind == StatusIdle
	})
}

func TestScheduler_BusySlotRejectsDeterministically(t *testing.T) {
	engine := pose.NewMockEngine()
	release := engine.BlockDetect()
	s := readyScheduler(t, engine)

	if got := s.SubmitFrame(testFrame(0)); got != Admitted {
		t.Fatalf("first frame = %v, want %v", got, Admitted)
	}

	// Both frames clear the rate gate but the slot is held
	if got := s.SubmitFrame(testFrame(1000)); got != SkippedBusy {
		t.Errorf("frame during inference = %v, want %v", got, SkippedBusy)
	}
	if got := s.SubmitFrame(testFrame(2000)); got != SkippedBusy {
		t.Errorf("frame during inference = %v, want %v", got, SkippedBusy)
	}

	release()
	waitFor(t, func() bool { return s.Metrics().Processed == 1 })

	if got := s.SubmitFrame(testFrame(3000)); got != Admitted {
		t.Errorf("frame after completion = %v, want %v", got, Admitted)
	}
}

func TestScheduler_PerCallFailureIsRecoverable(t *testing.T) {
	engine := pose.NewMockEngine()
	s := readyScheduler(t, engine)

	var mu sync.Mutex
	var transitions []StatusKind
	errorSeen := make(chan string, 1)

	cancel := s.StatusUpdates().Subscribe(func(status Status) {
		mu.Lock()
		transitions = append(transitions, status.Kind)
		mu.Unlock()
		if status.Kind == StatusError {
			select {
			case errorSeen <- status.Message:
			default:
			}
		}
	})
	defer cancel()

	engine.SetDetectError(pose.ErrProcessingFailed)

	if got := s.SubmitFrame(testFrame(0)); got != Admitted {
		t.Fatalf("SubmitFrame = %v, want %v", got, Admitted)
	}

	var msg string
	select {
	case msg = <-errorSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("error status never published")
	}
	if msg == "" {
		t.Error("error status should carry a message")
	}

	mu.Lock()
	got := make([]StatusKind, len(transitions))
	copy(got, transitions)
	mu.Unlock()

	want := []StatusKind{StatusIdle, StatusProcessing, StatusError}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}

	// The failed inference counts as a skip
	snap := s.Metrics()
	if snap.Skipped != 1 || snap.Processed != 0 {
		t.Errorf("metrics after failure = %+v, want 1 skipped", snap)
	}

	// Errors are per-call: the next frame is admitted and succeeds
	engine.SetDetectError(nil)
	if got := s.SubmitFrame(testFrame(1000)); got != Admitted {
		t.Fatalf("frame after failure = %v, want %v", got, Admitted)
	}
	waitFor(t, func() bool { return s.Metrics().Processed == 1 })
}

func TestScheduler_InitializationFailureIsSticky(t *testing.T) {
	engine := pose.NewMockEngine()
	engine.SetInitError(errors.New("model file corrupt"))

	s := newTestScheduler(t, engine)
	s.InitializeEngine(context.Background())

	waitFor(t, func() bool {
		_, fatal := s.FatalError()
		return fatal
	})

	status, ok := s.StatusUpdates().Latest()
	if !ok || status.Kind != StatusError {
		t.Fatalf("status = %+v, want sticky error", status)
	}

	// Every subsequent submission is rejected, metrics count them as skips
	for i := 0; i < 10; i++ {
		ts := int64(i) * 1000
		if got := s.SubmitFrame(testFrame(ts)); got != SkippedEngineNotReady {
			t.Fatalf("frame %d = %v, want %v", i, got, SkippedEngineNotReady)
		}
	}

	snap := s.Metrics()
	if snap.Skipped != 10 || snap.Processed != 0 {
		t.Errorf("metrics = %+v, want 10 skipped", snap)
	}

	// Status stays the fatal error, no silent retry happened
	status, _ = s.StatusUpdates().Latest()
	if status.Kind != StatusError {
		t.Errorf("status after submissions = %v, want error", status.Kind)
	}
}

func TestScheduler_ReinitializeRecoversFromFatal(t *testing.T) {
	engine := pose.NewMockEngine()
	engine.SetInitError(errors.New("transient load failure"))

	s := newTestScheduler(t, engine)
	if err := s.Reinitialize(context.Background()); err == nil {
		t.Fatal("expected first initialization to fail")
	}

	engine.SetInitError(nil)
	if err := s.Reinitialize(context.Background()); err != nil {
		t.Fatalf("Reinitialize() error = %v", err)
	}

	if got := s.SubmitFrame(testFrame(0)); got != Admitted {
		t.Errorf("frame after recovery = %v, want %v", got, Admitted)
	}
	waitFor(t, func() bool { return s.Metrics().Processed == 1 })
}

func TestScheduler_SlotFreeBeforeCompletionNotification(t *testing.T) {
	engine := pose.NewMockEngine()
	s := readyScheduler(t, engine)

	completed := make(chan struct{}, 1)
	sawProcessing := false
	cancel := s.StatusUpdates().Subscribe(func(status Status) {
		switch status.Kind {
		case StatusProcessing:
			sawProcessing = true
		case StatusIdle:
			if sawProcessing {
				select {
				case completed <- struct{}{}:
				default:
				}
			}
		}
	})
	defer cancel()

	if got := s.SubmitFrame(testFrame(0)); got != Admitted {
		t.Fatalf("SubmitFrame = %v, want %v", got, Admitted)
	}

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("completion notification never fired")
	}

	// The slot was freed before the notification, so a new submission is
	// acceptable immediately
	if got := s.SubmitFrame(testFrame(1000)); got != Admitted {
		t.Errorf("frame right after completion notification = %v, want %v", got, Admitted)
	}
}

func TestScheduler_PublishesResults(t *testing.T) {
	engine := pose.NewMockEngine()
	s := readyScheduler(t, engine)

	results := make(chan *pose.Result, 1)
	cancel := s.Results().Subscribe(func(r *pose.Result) {
		select {
		case results <- r:
		default:
		}
	})
	defer cancel()

	if got := s.SubmitFrame(testFrame(77)); got != Admitted {
		t.Fatalf("SubmitFrame = %v, want %v", got, Admitted)
	}

	select {
	case r := <-results:
		if len(r.Landmarks) != pose.NumLandmarks {
			t.Errorf("result has %d landmarks, want %d", len(r.Landmarks), pose.NumLandmarks)
		}
		if r.TimestampMs != 77 {
			t.Errorf("result timestamp = %d, want 77", r.TimestampMs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("result never published")
	}
}

// panicEngine fails by panicking instead of returning an error.
type panicEngine struct{}

func (panicEngine) Initialize(ctx context.Context) error { return nil }

func (panicEngine) Detect(pose.Frame) (*pose.Result, error) {
	panic("tensor shape mismatch")
}

func (panicEngine) Close() error { return nil }

func TestScheduler_EnginePanicBecomesErrorStatus(t *testing.T) {
	s := readyScheduler(t, panicEngine{})

	if got := s.SubmitFrame(testFrame(0)); got != Admitted {
		t.Fatalf("SubmitFrame = %v, want %v", got, Admitted)
	}

	waitFor(t, func() bool {
		status, ok := s.StatusUpdates().Latest()
		return ok && status.Kind == StatusError
	})

	// The slot must not be left busy by the panic
	if got := s.SubmitFrame(testFrame(1000)); got != Admitted {
		t.Errorf("frame after panic = %v, want %v", got, Admitted)
	}
}

func TestScheduler_StopWaitsForInflightInference(t *testing.T) {
	engine := pose.NewMockEngine()
	release := engine.BlockDetect()
	s := New(Config{Engine: engine})
	if err := s.Reinitialize(context.Background()); err != nil {
		t.Fatalf("Reinitialize() error = %v", err)
	}

	if got := s.SubmitFrame(testFrame(0)); got != Admitted {
		t.Fatalf("SubmitFrame = %v, want %v", got, Admitted)
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while an inference was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned after inference completed")
	}

	// After Stop every submission is rejected
	if got := s.SubmitFrame(testFrame(5000)); got != SkippedEngineNotReady {
		t.Errorf("frame after Stop = %v, want %v", got, SkippedEngineNotReady)
	}
}
