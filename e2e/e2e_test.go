package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/natyam/internal/app"
	"github.com/ayusman/natyam/internal/capture"
	"github.com/ayusman/natyam/internal/pose"
	"github.com/ayusman/natyam/internal/server"
	"github.com/ayusman/natyam/internal/store"
)

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "data.db")

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	// A looping single-frame camera and a mock engine stand in for the
	// webcam and the real pose model.
	mat := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer mat.Close()

	camera := capture.NewMockCamera([]*gocv.Mat{&mat}, true)
	engine := pose.NewMockEngine()
	engine.SetLandmarks(pose.StandingPoseLandmarks())

	application := app.New(app.Config{
		Store:  s,
		Camera: camera,
		Engine: engine,
	})

	srv := server.New(server.Config{
		Store:     s,
		Camera:    camera,
		Scheduler: application.Scheduler(),
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	if err := application.Start(); err != nil {
		t.Fatalf("app.Start() error = %v", err)
	}

	var sessionID string

	t.Run("SessionRecorded", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/sessions")
		if err != nil {
			t.Fatalf("list sessions error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var listed struct {
			Sessions []struct {
				ID      string `json:"id"`
				Engine  string `json:"engine"`
				EndedAt string `json:"ended_at"`
			} `json:"sessions"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
			t.Fatalf("decode error = %v", err)
		}
		if len(listed.Sessions) != 1 {
			t.Fatalf("expected 1 session, got %d", len(listed.Sessions))
		}
		if listed.Sessions[0].EndedAt != "" {
			t.Error("running session should not be ended")
		}
		sessionID = listed.Sessions[0].ID
	})

	t.Run("FramesProcessed", func(t *testing.T) {
		deadline := time.Now().Add(5 * time.Second)
		for {
			resp, err := client.Get(ts.URL + "/api/metrics")
			if err != nil {
				t.Fatalf("get metrics error = %v", err)
			}

			var metrics struct {
				Processed uint64 `json:"processed"`
				Skipped   uint64 `json:"skipped"`
				Total     uint64 `json:"total"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
				t.Fatalf("decode error = %v", err)
			}
			resp.Body.Close()

			if metrics.Processed >= 3 {
				if metrics.Total != metrics.Processed+metrics.Skipped {
					t.Errorf("total = %d, want %d", metrics.Total, metrics.Processed+metrics.Skipped)
				}
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for processed frames, have %d", metrics.Processed)
			}
			time.Sleep(20 * time.Millisecond)
		}
	})

	t.Run("LatestPose", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/pose")
		if err != nil {
			t.Fatalf("get pose error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var poseResp struct {
			Result *pose.Result `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&poseResp); err != nil {
			t.Fatalf("decode error = %v", err)
		}
		if poseResp.Result == nil {
			t.Fatal("expected a pose result")
		}
		if len(poseResp.Result.Landmarks) != pose.NumLandmarks {
			t.Errorf("landmarks = %d, want %d", len(poseResp.Result.Landmarks), pose.NumLandmarks)
		}
		if len(poseResp.Result.Connections) == 0 {
			t.Error("expected skeleton connections in the result")
		}
	})

	t.Run("StopEndsSession", func(t *testing.T) {
		application.Stop()

		resp, err := client.Get(ts.URL + "/api/sessions/" + sessionID)
		if err != nil {
			t.Fatalf("get session error = %v", err)
		}
		defer resp.Body.Close()

		var session struct {
			EndedAt string `json:"ended_at"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
			t.Fatalf("decode error = %v", err)
		}
		if session.EndedAt == "" {
			t.Error("stopped session should have an end time")
		}
	})

	t.Run("FinalSnapshotPersisted", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/sessions/" + sessionID + "/snapshots")
		if err != nil {
			t.Fatalf("get snapshots error = %v", err)
		}
		defer resp.Body.Close()

		var listed struct {
			Snapshots []struct {
				Processed uint64 `json:"processed"`
				Total     uint64 `json:"total"`
			} `json:"snapshots"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
			t.Fatalf("decode error = %v", err)
		}
		if len(listed.Snapshots) == 0 {
			t.Fatal("expected at least the final snapshot")
		}
		last := listed.Snapshots[len(listed.Snapshots)-1]
		if last.Processed < 3 {
			t.Errorf("final snapshot processed = %d, want at least 3", last.Processed)
		}
	})
}
