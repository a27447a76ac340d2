// Package archive keeps a SQLite history of persisted run snapshots.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"scout/internal/collector"
	"scout/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

// Run summarizes one archived run.
type Run struct {
	ID          string    `json:"runId"`
	StartedAt   time.Time `json:"startedAt"`
	LastSavedAt time.Time `json:"lastSavedAt"`
	Dropped     int       `json:"dropped"`
	Events      int       `json:"events"`
}

// Store archives snapshots. Saving the same snapshot twice leaves the store
// unchanged apart from the run's last_saved_at.
type Store struct {
	db    *sql.DB
	clock core.Clock
}

type Option func(*Store)

// WithClock sets the clock used for last_saved_at.
func WithClock(c core.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open opens (and migrates) the archive at dsn.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	// In-memory databases are per connection.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &Store{db: db, clock: core.RealClock{}}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating archive: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			last_saved_at INTEGER NOT NULL,
			dropped INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			ts INTEGER NOT NULL,
			test_key TEXT NOT NULL DEFAULT '',
			test TEXT,
			payload TEXT,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_test ON events(run_id, test_key)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record upserts the run row and inserts any events not yet archived.
// Snapshots without a run ID are empty and are skipped.
func (s *Store) Record(ctx context.Context, snap collector.Snapshot) (err error) {
	if snap.RunID == "" {
		return nil
	}
	started := s.clock.Now()
	if snap.StartedAt != nil {
		started = *snap.StartedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, last_saved_at, dropped) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET last_saved_at = excluded.last_saved_at, dropped = excluded.dropped`,
		snap.RunID, started.UnixNano(), s.clock.Now().UnixNano(), snap.Dropped)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO events (run_id, seq, kind, ts, test_key, test, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range snap.Tests {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encoding event %d: %w", e.Seq, err)
		}
		var test sql.NullString
		if e.Test != nil {
			b, err := json.Marshal(e.Test)
			if err != nil {
				return fmt.Errorf("encoding event %d identity: %w", e.Seq, err)
			}
			test = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, snap.RunID, e.Seq, string(e.Kind),
			e.Timestamp.UnixNano(), e.Test.Key(), test, string(payload)); err != nil {
			return fmt.Errorf("inserting event %d: %w", e.Seq, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing archive: %w", err)
	}
	return nil
}

// Runs lists archived runs, most recently started first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.run_id, r.started_at, r.last_saved_at, r.dropped, COUNT(e.seq)
		 FROM runs r LEFT JOIN events e ON e.run_id = r.run_id
		 GROUP BY r.run_id
		 ORDER BY r.started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r              Run
			started, saved int64
		)
		if err := rows.Scan(&r.ID, &started, &saved, &r.Dropped, &r.Events); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.LastSavedAt = time.Unix(0, saved).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Events returns the archived events of a run in sequence order.
func (s *Store) Events(ctx context.Context, runID string) ([]core.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, ts, test, payload FROM events WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		var (
			seq     uint64
			kind    string
			ts      int64
			test    sql.NullString
			payload sql.NullString
		)
		if err := rows.Scan(&seq, &kind, &ts, &test, &payload); err != nil {
			return nil, err
		}

		raw := struct {
			Kind      core.Kind       `json:"kind"`
			Seq       uint64          `json:"sequenceNumber"`
			Timestamp time.Time       `json:"timestamp"`
			Test      json.RawMessage `json:"test,omitempty"`
			Payload   json.RawMessage `json:"payload"`
		}{
			Kind:      core.Kind(kind),
			Seq:       seq,
			Timestamp: time.Unix(0, ts).UTC(),
			Payload:   json.RawMessage("null"),
		}
		if test.Valid {
			raw.Test = json.RawMessage(test.String)
		}
		if payload.Valid && payload.String != "" {
			raw.Payload = json.RawMessage(payload.String)
		}

		data, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		var e core.Event
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding event %d: %w", seq, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
