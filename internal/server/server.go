// Package server provides the HTTP server for the Natyam pose analysis pipeline.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/natyam/internal/capture"
	"github.com/ayusman/natyam/internal/scheduler"
	"github.com/ayusman/natyam/internal/server/api"
	"github.com/ayusman/natyam/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Camera    capture.Camera
	Scheduler *scheduler.Scheduler
}

// Server represents the HTTP server for the Natyam application.
type Server struct {
	config Config
	router *mux.Router
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	if s.config.Scheduler != nil {
		s.router.HandleFunc("/api/metrics", s.handleMetrics).Methods(http.MethodGet)
		s.router.HandleFunc("/api/metrics/reset", s.handleMetricsReset).Methods(http.MethodPost)
		s.router.HandleFunc("/api/pose", s.handlePose).Methods(http.MethodGet)
		s.router.Handle("/api/ws", NewPoseSocketHandler(s.config.Scheduler))
	}

	// Register session history API if Store is configured
	if s.config.Store != nil {
		api.NewSessionHandler(s.config.Store).Register(s.router)
	}

	// Register camera stream endpoint if Camera is configured
	if s.config.Camera != nil {
		s.router.Handle("/api/stream", NewStreamHandler(s.config.Camera)).Methods(http.MethodGet)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.router.PathPrefix("/").Handler(fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	writeJSON(w, http.StatusOK, response)
}

// handleMetrics handles GET requests to /api/metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.config.Scheduler.Metrics()

	response := map[string]interface{}{
		"processed":       snap.Processed,
		"skipped":         snap.Skipped,
		"total":           snap.Total,
		"avg_latency_ms":  snap.AvgLatencyMs,
		"last_latency_ms": float64(snap.LastLatency) / float64(time.Millisecond),
	}
	if !snap.LastCompleted.IsZero() {
		response["last_completed"] = snap.LastCompleted.Format(time.RFC3339Nano)
	}

	writeJSON(w, http.StatusOK, response)
}

// handleMetricsReset handles POST requests to /api/metrics/reset.
func (s *Server) handleMetricsReset(w http.ResponseWriter, r *http.Request) {
	s.config.Scheduler.ResetMetrics()
	w.WriteHeader(http.StatusNoContent)
}

// handlePose handles GET requests to /api/pose. It returns the latest
// detection result together with the current pipeline status.
func (s *Server) handlePose(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"result": nil,
	}

	if status, ok := s.config.Scheduler.StatusUpdates().Latest(); ok {
		response["status"] = status
	}
	if result, ok := s.config.Scheduler.Results().Latest(); ok && result != nil {
		response["result"] = result
	}

	writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
