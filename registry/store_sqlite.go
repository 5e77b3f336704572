package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path and
// initializes the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS steps (
		name        TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		model       TEXT NOT NULL DEFAULT '',
		prompt      TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL UNIQUE,
		workflow    TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT '',
		completed   INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0,
		skipped     INTEGER NOT NULL DEFAULT 0,
		started_at  DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns every stored step definition, name-ordered.
func (s *SQLiteStore) Load(ctx context.Context) ([]StepDef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, model, prompt, created_at FROM steps ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	defer rows.Close()

	var defs []StepDef
	for rows.Next() {
		var def StepDef
		if err := rows.Scan(&def.Name, &def.Description, &def.Model, &def.Prompt, &def.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// Save inserts or replaces a step definition by name.
func (s *SQLiteStore) Save(ctx context.Context, def StepDef) error {
	if def.Name == "" {
		return fmt.Errorf("save step: empty name")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (name, description, model, prompt)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   description = excluded.description,
		   model       = excluded.model,
		   prompt      = excluded.prompt`,
		def.Name, def.Description, def.Model, def.Prompt,
	)
	return err
}

// Delete removes a step definition.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM steps WHERE name = ?`, name)
	return err
}

// RecordRun stores a finished run's summary.
func (s *SQLiteStore) RecordRun(ctx context.Context, rec RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, workflow, status, completed, failed, skipped, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Workflow, rec.Status,
		rec.Completed, rec.Failed, rec.Skipped,
		rec.StartedAt, rec.Duration.Milliseconds(),
	)
	return err
}

// RecentRuns returns up to limit run summaries, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, workflow, status, completed, failed, skipped, started_at, duration_ms
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var ms int64
		if err := rows.Scan(&rec.RunID, &rec.Workflow, &rec.Status,
			&rec.Completed, &rec.Failed, &rec.Skipped, &rec.StartedAt, &ms); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Duration = time.Duration(ms) * time.Millisecond
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
