package pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// MediaPipeEngine implements Engine using a Python MediaPipe subprocess.
// Frames are sent as length-prefixed JPEG buffers on stdin; the service
// answers with one JSON line per frame.
type MediaPipeEngine struct {
	config Config

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	started bool
}

// NewMediaPipeEngine creates a new MediaPipe engine. The Python process is
// not started until Initialize is called.
func NewMediaPipeEngine(config Config) (*MediaPipeEngine, error) {
	if config.ModelPath == "" {
		config.ModelPath = findPoseScript()
	}
	if config.ModelPath == "" {
		return nil, fmt.Errorf("pose_service.py not found")
	}

	return &MediaPipeEngine{
		config: config,
	}, nil
}

// Initialize starts the Python service. Idempotent after success; a failed
// attempt may be retried by calling Initialize again.
func (e *MediaPipeEngine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}
	return e.startProcess(ctx)
}

func (e *MediaPipeEngine) startProcess(ctx context.Context) error {
	// Use virtual environment Python if available
	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	cmd := exec.Command(pythonPath, e.config.ModelPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	reader := bufio.NewReader(stdout)

	// The service prints a single "ready" line once the model is loaded.
	// Loading can take a while; honor cancellation while we wait.
	readyCh := make(chan error, 1)
	go func() {
		line, err := reader.ReadString('\n')
		if err != nil {
			readyCh <- fmt.Errorf("read ready line: %w", err)
			return
		}
		var ready struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &ready); err != nil {
			readyCh <- fmt.Errorf("parse ready line: %w", err)
			return
		}
		if ready.Status != "ready" {
			readyCh <- fmt.Errorf("pose service failed to load: %s", ready.Error)
			return
		}
		readyCh <- nil
	}()

	select {
	case err := <-readyCh:
		if err != nil {
			stdin.Close()
			cmd.Process.Kill()
			cmd.Wait()
			return err
		}
	case <-ctx.Done():
		stdin.Close()
		cmd.Process.Kill()
		cmd.Wait()
		return ctx.Err()
	}

	e.cmd = cmd
	e.stdin = stdin
	e.stdout = reader
	e.started = true

	return nil
}

// Detect sends one frame to the service and parses the landmark response.
func (e *MediaPipeEngine) Detect(frame Frame) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil, ErrEngineUninitialized
	}

	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("%w: empty frame buffer", ErrInvalidInput)
	}

	// Write length (4 bytes big-endian) + JPEG data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(frame.Data)))

	if _, err := e.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("%w: write length: %v", ErrProcessingFailed, err)
	}
	if _, err := e.stdin.Write(frame.Data); err != nil {
		return nil, fmt.Errorf("%w: write data: %v", ErrProcessingFailed, err)
	}

	// Read JSON response
	line, err := e.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProcessingFailed, err)
	}

	var response struct {
		Landmarks []jsonLandmark `json:"landmarks"`
		Error     string         `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrProcessingFailed, err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrProcessingFailed, response.Error)
	}

	landmarks := make([]Landmark, len(response.Landmarks))
	for i, l := range response.Landmarks {
		landmarks[i] = Landmark{
			X:          l.X,
			Y:          l.Y,
			Confidence: l.Visibility,
			Type:       i,
		}
	}

	return NewResult(landmarks, frame.TimestampMs), nil
}

// Close shuts down the Python process.
func (e *MediaPipeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}

	if e.stdin != nil {
		e.stdin.Close()
	}

	err := e.cmd.Wait()
	e.started = false
	e.cmd = nil
	e.stdin = nil
	e.stdout = nil

	return err
}

func findPoseScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/pose_service.py",
		"../scripts/pose_service.py",
		filepath.Join(execDir, "scripts/pose_service.py"),
		filepath.Join(os.Getenv("HOME"), ".natyam/scripts/pose_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
// It checks for venv/bin/python relative to the project directory.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".natyam/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonLandmark represents the JSON structure from the Python service.
type jsonLandmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}
