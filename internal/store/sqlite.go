package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the SQLite-backed refresh-cycle audit log. It records the
// outcome of each cycle (state, timing, counts), never snapshot contents.
type Store struct {
	db *sql.DB
}

// CycleRecord is one audited refresh cycle.
type CycleRecord struct {
	ID              string         `json:"id"`
	State           string         `json:"state"`
	Message         string         `json:"message,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	DurationMS      int64          `json:"duration_ms"`
	HTTPRequests    int            `json:"http_requests"`
	IntrusionEvents int            `json:"intrusion_events"`
	TimelineMarks   int            `json:"timeline_marks"`
	Methods         map[string]int `json:"methods,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NewStore creates a new SQLite store instance
func NewStore(dbPath string) (*Store, error) {
	// Ensure target directory exists (e.g., ./data)
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; also keeps :memory: databases on a single connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate performs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			message TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			http_requests INTEGER NOT NULL DEFAULT 0,
			intrusion_events INTEGER NOT NULL DEFAULT 0,
			timeline_marks INTEGER NOT NULL DEFAULT 0,
			methods TEXT,
			created_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cycles_finished_at ON cycles(finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_state ON cycles(state)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// RecordCycle stores one cycle outcome. Re-recording an ID replaces it.
func (s *Store) RecordCycle(ctx context.Context, rec CycleRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("cycle record requires an id")
	}
	methodsJSON := ""
	if len(rec.Methods) > 0 {
		b, err := json.Marshal(rec.Methods)
		if err != nil {
			return fmt.Errorf("failed to marshal methods: %w", err)
		}
		methodsJSON = string(b)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `INSERT OR REPLACE INTO cycles (
		id, state, message, started_at, finished_at, duration_ms,
		http_requests, intrusion_events, timeline_marks, methods, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.State, rec.Message,
		rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(), rec.DurationMS,
		rec.HTTPRequests, rec.IntrusionEvents, rec.TimelineMarks,
		methodsJSON, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save cycle: %w", err)
	}
	return nil
}

// ListCycles returns recorded cycles, newest first. State filters when
// non-empty; limit <= 0 returns all.
func (s *Store) ListCycles(ctx context.Context, state string, limit int) ([]CycleRecord, error) {
	query := `SELECT id, state, message, started_at, finished_at, duration_ms,
		http_requests, intrusion_events, timeline_marks, methods, created_at
		FROM cycles WHERE 1=1`
	args := []interface{}{}

	if state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}
	query += " ORDER BY finished_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var (
			rec                         CycleRecord
			message, methods            sql.NullString
			started, finished, createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.State, &message, &started, &finished,
			&rec.DurationMS, &rec.HTTPRequests, &rec.IntrusionEvents, &rec.TimelineMarks,
			&methods, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		rec.Message = message.String
		rec.StartedAt = time.UnixMilli(started)
		rec.FinishedAt = time.UnixMilli(finished)
		rec.CreatedAt = time.UnixMilli(createdAt)
		if methods.String != "" {
			if err := json.Unmarshal([]byte(methods.String), &rec.Methods); err != nil {
				return nil, fmt.Errorf("failed to decode methods for cycle %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cycles: %w", err)
	}
	return out, nil
}

// CycleCounts returns the number of recorded cycles per state.
func (s *Store) CycleCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM cycles GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count cycles: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan cycle count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// PruneBefore deletes cycles that finished before cutoff and returns how many were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cycles WHERE finished_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cycles: %w", err)
	}
	return res.RowsAffected()
}
