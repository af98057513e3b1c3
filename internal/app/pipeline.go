package app

import (
	"log"
	"time"
)

// runPipeline is the capture loop. It reads frames at the camera's native
// rate and hands every one to the scheduler, which decides whether the frame
// is admitted for inference or skipped. The loop itself never waits on
// inference.
//
// A second ticker persists the metrics counters periodically so a session's
// throughput history survives a crash.
func (a *App) runPipeline(stopCh, done chan struct{}) {
	defer close(done)

	fps := a.camera.FPS()
	if fps <= 0 {
		fps = 30
	}
	frameInterval := time.Second / time.Duration(fps)

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	snapshotInterval := a.config.SnapshotInterval
	if snapshotInterval <= 0 {
		snapshotInterval = DefaultSnapshotInterval
	}
	snapshotTicker := time.NewTicker(snapshotInterval)
	defer snapshotTicker.Stop()

	// Avoid flooding the log when the camera misbehaves
	var captureErrors int

	for {
		select {
		case <-stopCh:
			return

		case <-snapshotTicker.C:
			a.recordSnapshot()

		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.camera.CaptureFrame()
			if err != nil {
				captureErrors++
				if captureErrors <= 3 || captureErrors%100 == 0 {
					log.Printf("Error capturing frame (%d): %v", captureErrors, err)
				}
				continue
			}
			captureErrors = 0

			a.scheduler.SubmitFrame(frame)
		}
	}
}
