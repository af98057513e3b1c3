package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ayusman/natyam/internal/app"
	"github.com/ayusman/natyam/internal/scheduler"
	"github.com/ayusman/natyam/internal/server"
	"github.com/ayusman/natyam/internal/store"
	"github.com/ayusman/natyam/internal/tray"
)

func main() {
	var (
		cameraID  = flag.Int("camera", 0, "camera device id")
		addr      = flag.String("addr", ":8080", "HTTP listen address")
		modelPath = flag.String("model", "", "path to an ONNX pose model (uses MediaPipe when empty)")
		targetFPS = flag.Int("fps", 30, "target inference rate in frames per second")
		noTray    = flag.Bool("no-tray", false, "run without the system tray")
	)
	flag.Parse()

	fmt.Println("Natyam - Real-Time Pose Analysis")

	// Initialize the store
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}

	dbDir := filepath.Join(homeDir, ".natyam")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dbDir, "natyam.db")
	st, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	targetInterval := scheduler.DefaultTargetInterval
	if *targetFPS > 0 {
		targetInterval = time.Second / time.Duration(*targetFPS)
	}

	application := app.New(app.Config{
		Store:          st,
		CameraID:       *cameraID,
		ModelPath:      *modelPath,
		TargetInterval: targetInterval,
	})

	if err := application.Start(); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}
	defer application.Stop()

	// Find web directory
	webDir := findWebDir()
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Camera:    application.Camera(),
		Scheduler: application.Scheduler(),
	})

	fmt.Printf("Starting server on %s\n", *addr)
	go func() {
		if err := srv.ListenAndServe(*addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	if *noTray {
		select {}
	}

	runTray(application)
}

// runTray blocks running the system tray on the main goroutine, mirroring
// pipeline status and throughput into the menu.
func runTray(application *app.App) {
	t := tray.New()

	t.OnToggle(application.SetEnabled)
	t.OnSettings(func() {
		openBrowser("http://localhost:8080")
	})
	t.OnQuit(application.Stop)

	cancelStatus := application.Scheduler().StatusUpdates().Subscribe(func(status scheduler.Status) {
		text := status.Kind.String()
		if status.Message != "" {
			text += ": " + status.Message
		}
		t.SetStatus(text)
	})
	defer cancelStatus()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			snap := application.Scheduler().Metrics()
			t.SetMetrics(fmt.Sprintf("%d processed / %d skipped, avg %.1f ms",
				snap.Processed, snap.Skipped, snap.AvgLatencyMs))
		}
	}()

	t.Run()
}

// openBrowser opens the given URL in the default browser.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch {
	case fileExists("/usr/bin/open"):
		cmd = exec.Command("open", url)
	case fileExists("/usr/bin/xdg-open"):
		cmd = exec.Command("xdg-open", url)
	default:
		log.Printf("Open %s in your browser", url)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.natyam/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".natyam", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
