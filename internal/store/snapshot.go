package store

import (
	"database/sql"
	"errors"
	"time"
)

// MetricsSnapshot is one periodic sample of the pipeline throughput counters
// for a session.
type MetricsSnapshot struct {
	ID            int64
	SessionID     string
	CapturedAt    time.Time
	Processed     uint64
	Skipped       uint64
	Total         uint64
	AvgLatencyMs  float64
	LastLatencyMs float64
}

// SnapshotRepository provides operations for metrics snapshots.
type SnapshotRepository struct {
	db *sql.DB
}

// Snapshots returns the snapshot repository for this store.
func (s *Store) Snapshots() *SnapshotRepository {
	return &SnapshotRepository{db: s.db}
}

// Record inserts a new snapshot for a session.
func (r *SnapshotRepository) Record(snap *MetricsSnapshot) error {
	snap.CapturedAt = time.Now()

	result, err := r.db.Exec(
		`INSERT INTO metrics_snapshots
		 (session_id, captured_at, processed_count, skipped_count, total_count, avg_latency_ms, last_latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, snap.CapturedAt, snap.Processed, snap.Skipped,
		snap.Total, snap.AvgLatencyMs, snap.LastLatencyMs,
	)
	if err != nil {
		return err
	}

	snap.ID, err = result.LastInsertId()
	return err
}

// ListBySession returns all snapshots for a session in capture order.
func (r *SnapshotRepository) ListBySession(sessionID string) ([]MetricsSnapshot, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, captured_at, processed_count, skipped_count, total_count, avg_latency_ms, last_latency_ms
		 FROM metrics_snapshots WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []MetricsSnapshot
	for rows.Next() {
		var snap MetricsSnapshot
		if err := rows.Scan(&snap.ID, &snap.SessionID, &snap.CapturedAt,
			&snap.Processed, &snap.Skipped, &snap.Total,
			&snap.AvgLatencyMs, &snap.LastLatencyMs); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// Latest returns the most recent snapshot for a session.
func (r *SnapshotRepository) Latest(sessionID string) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{}

	err := r.db.QueryRow(
		`SELECT id, session_id, captured_at, processed_count, skipped_count, total_count, avg_latency_ms, last_latency_ms
		 FROM metrics_snapshots WHERE session_id = ? ORDER BY id DESC LIMIT 1`,
		sessionID,
	).Scan(&snap.ID, &snap.SessionID, &snap.CapturedAt,
		&snap.Processed, &snap.Skipped, &snap.Total,
		&snap.AvgLatencyMs, &snap.LastLatencyMs)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return snap, nil
}
