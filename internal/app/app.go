// Package app provides the main application logic for the Natyam pose analysis pipeline.
package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/natyam/internal/capture"
	"github.com/ayusman/natyam/internal/pose"
	"github.com/ayusman/natyam/internal/scheduler"
	"github.com/ayusman/natyam/internal/store"
)

// DefaultSnapshotInterval is how often the current metrics counters are
// persisted while the pipeline runs.
const DefaultSnapshotInterval = 30 * time.Second

// Config holds configuration options for the application.
type Config struct {
	Store    *store.Store
	CameraID int

	// ModelPath selects the ONNX engine when set.
	ModelPath string

	// TargetInterval is the minimum spacing between frames admitted for
	// inference. Defaults to scheduler.DefaultTargetInterval.
	TargetInterval time.Duration

	// SnapshotInterval overrides DefaultSnapshotInterval.
	SnapshotInterval time.Duration

	// Camera and Engine override the defaults, mainly for tests.
	Camera capture.Camera
	Engine pose.Engine
}

// App orchestrates the capture loop, the inference scheduler, and session
// persistence.
type App struct {
	config     Config
	camera     capture.Camera
	engine     pose.Engine
	engineName string
	scheduler  *scheduler.Scheduler

	enabled bool
	mu      sync.RWMutex
	stopCh  chan struct{}
	done    chan struct{}
	session *store.Session
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	a := &App{
		config:  config,
		enabled: true,
	}

	a.camera = config.Camera
	if a.camera == nil {
		a.camera = capture.NewCamera(config.CameraID)
	}

	a.engine, a.engineName = selectEngine(config)

	a.scheduler = scheduler.New(scheduler.Config{
		Engine:         a.engine,
		TargetInterval: config.TargetInterval,
	})

	return a
}

// selectEngine picks the pose engine for this run. An explicit Engine wins,
// then the ONNX engine when a model path is configured, then MediaPipe, and
// finally the mock engine so the pipeline always comes up.
func selectEngine(config Config) (pose.Engine, string) {
	if config.Engine != nil {
		return config.Engine, "custom"
	}

	engineConfig := pose.DefaultConfig()
	if config.ModelPath != "" {
		engineConfig.ModelPath = config.ModelPath
		if onnx, err := pose.NewONNXEngine(engineConfig); err == nil {
			log.Println("Using ONNX pose estimation")
			return onnx, "onnx"
		} else {
			log.Printf("ONNX engine not available (%v), trying MediaPipe", err)
		}
	}

	if mp, err := pose.NewMediaPipeEngine(engineConfig); err == nil {
		log.Println("Using MediaPipe pose estimation")
		return mp, "mediapipe"
	} else {
		log.Printf("MediaPipe not available (%v), using mock engine", err)
	}

	mock := pose.NewMockEngine()
	mock.SetLandmarks(pose.StandingPoseLandmarks())
	return mock, "mock"
}

// SetEnabled enables or disables frame submission. While disabled, captured
// frames are discarded without touching the scheduler or its counters.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether frame submission is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Start opens the camera, begins engine initialization, and launches the
// capture loop.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	if a.config.Store != nil {
		session := &store.Session{
			ID:        uuid.NewString(),
			Engine:    a.engineName,
			ModelPath: a.config.ModelPath,
		}
		if err := a.config.Store.Sessions().Create(session); err != nil {
			log.Printf("Failed to record session: %v", err)
		} else {
			a.session = session
		}
	}

	a.scheduler.InitializeEngine(context.Background())

	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.runPipeline(a.stopCh, a.done)

	log.Println("Analysis pipeline started")
	return nil
}

// Stop halts the capture loop, waits for in-flight inference to finish, and
// releases resources. A final metrics snapshot is persisted before the
// session is closed.
func (a *App) Stop() {
	a.mu.Lock()

	if a.stopCh == nil {
		a.mu.Unlock()
		return
	}
	close(a.stopCh)
	a.stopCh = nil
	done := a.done
	a.mu.Unlock()

	<-done

	// Waits for any in-flight inference before closing the publishers.
	a.scheduler.Stop()

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	if err := a.engine.Close(); err != nil {
		log.Printf("Error closing engine: %v", err)
	}

	a.recordSnapshot()
	if a.config.Store != nil && a.session != nil {
		if err := a.config.Store.Sessions().End(a.session.ID); err != nil {
			log.Printf("Failed to end session: %v", err)
		}
	}

	log.Println("Analysis pipeline stopped")
}

// recordSnapshot persists the current metrics counters for the session.
func (a *App) recordSnapshot() {
	if a.config.Store == nil || a.session == nil {
		return
	}

	snap := a.scheduler.Metrics()
	record := &store.MetricsSnapshot{
		SessionID:     a.session.ID,
		Processed:     snap.Processed,
		Skipped:       snap.Skipped,
		Total:         snap.Total,
		AvgLatencyMs:  snap.AvgLatencyMs,
		LastLatencyMs: float64(snap.LastLatency) / float64(time.Millisecond),
	}
	if err := a.config.Store.Snapshots().Record(record); err != nil {
		log.Printf("Failed to record metrics snapshot: %v", err)
	}
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Scheduler returns the inference scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Session returns the session row for the current run, if one was recorded.
func (a *App) Session() *store.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}
