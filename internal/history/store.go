// Package history persists finished sessions and their per-second samples
// to SQLite.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/oarsense/rowmon/internal/engine"
)

// ErrDiscarded is returned when a session is too small to be worth keeping:
// fewer than 5 strokes or under 10 meters is sensor noise, not a workout.
var ErrDiscarded = errors.New("session discarded as noise")

const (
	minSessionStrokes  = 5
	minSessionDistance = 10.0 // meters
)

// Store wraps SQLite access for session history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			elapsed_s REAL NOT NULL,
			distance_m REAL NOT NULL,
			strokes INTEGER NOT NULL,
			avg_pace REAL NOT NULL,
			best_pace REAL NOT NULL,
			avg_power REAL NOT NULL,
			peak_power REAL NOT NULL,
			calories REAL NOT NULL,
			avg_stroke_rate REAL NOT NULL,
			drag_factor REAL NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,

		`CREATE TABLE IF NOT EXISTS samples (
			session_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			power_w INTEGER NOT NULL,
			velocity_cm_s INTEGER NOT NULL,
			heart_rate INTEGER NOT NULL,
			distance_delta_dm INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveSession persists a session summary with its per-second samples. A
// session below the noise floor returns ErrDiscarded and writes nothing.
func (s *Store) SaveSession(sum engine.Summary, samples []engine.Sample) (int64, error) {
	if sum.Strokes < minSessionStrokes || sum.Distance < minSessionDistance {
		return 0, ErrDiscarded
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO sessions
			(started_at, ended_at, elapsed_s, distance_m, strokes,
			 avg_pace, best_pace, avg_power, peak_power, calories,
			 avg_stroke_rate, drag_factor)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.StartedAt.Format(time.RFC3339),
		sum.EndedAt.Format(time.RFC3339),
		sum.Elapsed.Seconds(),
		sum.Distance,
		sum.Strokes,
		sum.AvgPace,
		sum.BestPace,
		sum.AvgPower,
		sum.PeakPower,
		sum.Calories,
		sum.AvgStrokeRate,
		sum.DragFactor,
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO samples
			(session_id, seq, power_w, velocity_cm_s, heart_rate, distance_delta_dm)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare samples: %w", err)
	}
	defer stmt.Close()

	for i, smp := range samples {
		if _, err := stmt.Exec(id, i, smp.PowerW, smp.VelocityCmS, smp.HeartRate, smp.DistanceDeltaDm); err != nil {
			return 0, fmt.Errorf("insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// SessionRow is one persisted session summary.
type SessionRow struct {
	ID            int64
	StartedAt     time.Time
	EndedAt       time.Time
	ElapsedS      float64
	DistanceM     float64
	Strokes       int
	AvgPace       float64
	BestPace      float64
	AvgPower      float64
	PeakPower     float64
	Calories      float64
	AvgStrokeRate float64
	DragFactor    float64
}

// RecentSessions returns the most recent sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]SessionRow, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at, elapsed_s, distance_m, strokes,
		        avg_pace, best_pace, avg_power, peak_power, calories,
		        avg_stroke_rate, drag_factor
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var started, ended string
		if err := rows.Scan(&r.ID, &started, &ended, &r.ElapsedS, &r.DistanceM,
			&r.Strokes, &r.AvgPace, &r.BestPace, &r.AvgPower, &r.PeakPower,
			&r.Calories, &r.AvgStrokeRate, &r.DragFactor); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.EndedAt, _ = time.Parse(time.RFC3339, ended)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Samples returns the per-second samples of a session in order.
func (s *Store) Samples(sessionID int64) ([]engine.Sample, error) {
	rows, err := s.db.Query(
		`SELECT power_w, velocity_cm_s, heart_rate, distance_delta_dm
		 FROM samples WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []engine.Sample
	for rows.Next() {
		var smp engine.Sample
		if err := rows.Scan(&smp.PowerW, &smp.VelocityCmS, &smp.HeartRate, &smp.DistanceDeltaDm); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}
