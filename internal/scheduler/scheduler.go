package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/natyam/internal/pose"
)

// DefaultTargetInterval is the admission interval used when none is
// configured (30 frames per second).
const DefaultTargetInterval = time.Second / 30

// Config holds configuration options for the scheduler.
type Config struct {
	// Engine runs pose estimation on admitted frames. Required.
	Engine pose.Engine

	// TargetInterval is the minimum spacing between admitted frames.
	// Defaults to DefaultTargetInterval.
	TargetInterval time.Duration
}

// Scheduler admits frames through the rate gate into the single inference
// slot, runs the engine on a worker goroutine, and publishes results, status
// transitions, and metrics.
//
// SubmitFrame must be called from a single producer context; everything else
// is safe for concurrent use.
type Scheduler struct {
	engine  pose.Engine
	gate    *RateGate
	slot    *Slot
	metrics *Tracker
	results *Publisher[*pose.Result]
	status  *Publisher[Status]

	ready    atomic.Bool
	fatalMsg atomic.Pointer[string]
	stopped  atomic.Bool
	inflight sync.WaitGroup
}

// New creates a Scheduler around the given engine. The initial published
// status is idle; frames are rejected as engine-not-ready until
// InitializeEngine completes.
func New(config Config) *Scheduler {
	interval := config.TargetInterval
	if interval <= 0 {
		interval = DefaultTargetInterval
	}

	s := &Scheduler{
		engine:  config.Engine,
		gate:    NewRateGate(interval),
		slot:    &Slot{},
		metrics: NewTracker(),
		results: NewPublisher[*pose.Result](),
		status:  NewPublisher[Status](),
	}
	s.status.Publish(Status{Kind: StatusIdle})
	return s
}

// InitializeEngine starts asynchronous one-time engine initialization and
// returns immediately. On failure the scheduler enters a sticky fatal state:
// status carries the error and every subsequent frame is rejected until
// Reinitialize is called.
func (s *Scheduler) InitializeEngine(ctx context.Context) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.initialize(ctx)
	}()
}

// Reinitialize clears a fatal initialization failure and retries engine
// initialization synchronously. It is the only recovery path from a failed
// initialization; per-call inference failures never need it.
func (s *Scheduler) Reinitialize(ctx context.Context) error {
	s.fatalMsg.Store(nil)
	return s.initialize(ctx)
}

func (s *Scheduler) initialize(ctx context.Context) error {
	err := s.engine.Initialize(ctx)
	if err != nil {
		msg := fmt.Sprintf("engine initialization failed: %v", err)
		s.fatalMsg.Store(&msg)
		s.status.Publish(Status{Kind: StatusError, Message: msg})
		log.Printf("scheduler: %s", msg)
		return err
	}

	s.ready.Store(true)
	log.Println("scheduler: engine ready")
	return nil
}

// SubmitFrame decides what to do with one captured frame and returns
// immediately; it never waits on inference completion. Admitted frames run
// asynchronously on a worker goroutine. Every non-admitted frame counts as
// skipped.
func (s *Scheduler) SubmitFrame(frame pose.Frame) Admission {
	if s.stopped.Load() || s.fatalMsg.Load() != nil {
		s.metrics.RecordSkipped()
		return SkippedEngineNotReady
	}

	if !s.gate.ShouldAdmit(frame.TimestampMs) {
		s.metrics.RecordSkipped()
		return SkippedRate
	}

	if !s.ready.Load() {
		s.metrics.RecordSkipped()
		return SkippedEngineNotReady
	}

	if !s.slot.TryAcquire() {
		s.metrics.RecordSkipped()
		return SkippedBusy
	}

	s.inflight.Add(1)
	go s.runInference(frame)

	return Admitted
}

// runInference executes one inference to completion. The slot is released
// before any completion notification fires, so a new submission is
// acceptable the moment observers learn about this one.
func (s *Scheduler) runInference(frame pose.Frame) {
	defer s.inflight.Done()

	s.status.Publish(Status{Kind: StatusProcessing})

	start := time.Now()
	result, err := s.detect(frame)
	elapsed := time.Since(start)

	s.slot.Release()

	if err != nil {
		s.metrics.RecordSkipped()
		s.status.Publish(Status{Kind: StatusError, Message: err.Error()})
		log.Printf("scheduler: inference failed: %v", err)
		return
	}

	s.metrics.RecordProcessed(elapsed)
	s.results.Publish(result)
	s.status.Publish(Status{Kind: StatusIdle})
}

// detect calls the engine, translating a panic into a per-call processing
// error so faults never escape into the scheduler's goroutines.
func (s *Scheduler) detect(frame pose.Frame) (result *pose.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: engine panic: %v", pose.ErrProcessingFailed, r)
		}
	}()
	return s.engine.Detect(frame)
}

// Results exposes the result publisher for observers.
func (s *Scheduler) Results() *Publisher[*pose.Result] {
	return s.results
}

// StatusUpdates exposes the status publisher for observers.
func (s *Scheduler) StatusUpdates() *Publisher[Status] {
	return s.status
}

// Metrics returns a consistent snapshot of the throughput counters.
func (s *Scheduler) Metrics() Snapshot {
	return s.metrics.Snapshot()
}

// ResetMetrics zeroes the throughput counters and the running mean.
func (s *Scheduler) ResetMetrics() {
	s.metrics.Reset()
}

// EngineReady reports whether the engine has completed initialization.
func (s *Scheduler) EngineReady() bool {
	return s.ready.Load()
}

// FatalError returns the sticky initialization failure message, if any.
func (s *Scheduler) FatalError() (string, bool) {
	if msg := s.fatalMsg.Load(); msg != nil {
		return *msg, true
	}
	return "", false
}

// Stop rejects all further submissions, waits for any in-flight inference to
// run to completion (there is no mid-flight cancellation), and closes the
// publishers. Queued observer notifications are still delivered.
func (s *Scheduler) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}

	s.inflight.Wait()
	s.results.Close()
	s.status.Close()
}
