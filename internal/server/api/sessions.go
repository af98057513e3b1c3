// Package api provides HTTP API handlers for the Natyam pose analysis pipeline.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/natyam/internal/store"
)

// SessionHandler handles HTTP requests for session history resources.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// Register attaches the session routes to the given router.
func (h *SessionHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/sessions", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/api/sessions/{id}/snapshots", h.snapshots).Methods(http.MethodGet)
}

// Request and response types

type sessionResponse struct {
	ID        string `json:"id"`
	Engine    string `json:"engine"`
	ModelPath string `json:"model_path,omitempty"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type snapshotResponse struct {
	ID            int64   `json:"id"`
	CapturedAt    string  `json:"captured_at"`
	Processed     uint64  `json:"processed"`
	Skipped       uint64  `json:"skipped"`
	Total         uint64  `json:"total"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

type listSnapshotsResponse struct {
	Snapshots []snapshotResponse `json:"snapshots"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// toSessionResponse converts a store.Session to a sessionResponse.
func toSessionResponse(s *store.Session) sessionResponse {
	resp := sessionResponse{
		ID:        s.ID,
		Engine:    s.Engine,
		ModelPath: s.ModelPath,
		StartedAt: s.StartedAt.Format(time.RFC3339),
	}
	if s.EndedAt != nil {
		resp.EndedAt = s.EndedAt.Format(time.RFC3339)
	}
	return resp
}

// toSnapshotResponse converts a store.MetricsSnapshot to a snapshotResponse.
func toSnapshotResponse(s *store.MetricsSnapshot) snapshotResponse {
	return snapshotResponse{
		ID:            s.ID,
		CapturedAt:    s.CapturedAt.Format(time.RFC3339),
		Processed:     s.Processed,
		Skipped:       s.Skipped,
		Total:         s.Total,
		AvgLatencyMs:  s.AvgLatencyMs,
		LastLatencyMs: s.LastLatencyMs,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/sessions and returns all sessions, newest first.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{
		Sessions: make([]sessionResponse, 0, len(sessions)),
	}
	for i := range sessions {
		response.Sessions = append(response.Sessions, toSessionResponse(&sessions[i]))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/sessions/{id} and returns a single session.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	session, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// delete handles DELETE /api/sessions/{id} and removes a session along with
// its snapshots.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// snapshots handles GET /api/sessions/{id}/snapshots and returns all metrics
// snapshots recorded for a session in capture order.
func (h *SessionHandler) snapshots(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.store.Sessions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	snapshots, err := h.store.Snapshots().ListBySession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}

	response := listSnapshotsResponse{
		Snapshots: make([]snapshotResponse, 0, len(snapshots)),
	}
	for i := range snapshots {
		response.Snapshots = append(response.Snapshots, toSnapshotResponse(&snapshots[i]))
	}

	writeJSON(w, http.StatusOK, response)
}
