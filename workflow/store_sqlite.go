// Copyright 2026 Conductor OSS
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nicholasgasior/docconv-go"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS workflows (
	name          TEXT PRIMARY KEY,
	input_dir     TEXT NOT NULL,
	output_dir    TEXT NOT NULL,
	output_format TEXT NOT NULL,
	quality       TEXT NOT NULL,
	recursive     INTEGER NOT NULL DEFAULT 0,
	enabled       INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	last_run_at   TEXT,
	run_count     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS workflow_runs (
	id            TEXT PRIMARY KEY,
	workflow      TEXT NOT NULL,
	output_format TEXT NOT NULL,
	quality       TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL,
	total_files   INTEGER NOT NULL,
	successful    INTEGER NOT NULL,
	failed        INTEGER NOT NULL,
	cancelled     INTEGER NOT NULL,
	error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs (workflow);
`

const workflowColumns = `name, input_dir, output_dir, output_format, quality, recursive, enabled,
	created_at, updated_at, last_run_at, run_count`

// SQLiteStore keeps definitions and run history in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at source, which
// may be a file path or a file: URI, and applies the schema.
func NewSQLiteStore(ctx context.Context, source string) (*SQLiteStore, error) {
	if source == "" {
		return nil, errors.New("sqlite: connection source is empty")
	}
	db, err := sql.Open("sqlite3", source)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", source, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", source, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*Definition, error) {
	var (
		d                  Definition
		format, quality    string
		created, updated   string
		lastRun            sql.NullString
		recursive, enabled bool
	)
	if err := row.Scan(&d.Name, &d.InputDir, &d.OutputDir, &format, &quality, &recursive, &enabled,
		&created, &updated, &lastRun, &d.RunCount); err != nil {
		return nil, err
	}
	d.Format = docconv.Format(format)
	d.Quality = docconv.Quality(quality)
	d.Recursive = recursive
	d.Enabled = enabled

	var err error
	if d.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		t, err := parseTime(lastRun.String)
		if err != nil {
			return nil, err
		}
		d.LastRunAt = &t
	}
	return &d, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

func (s *SQLiteStore) Get(ctx context.Context, name string) (*Definition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE name = ?`, name)
	d, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get workflow %q: %w", name, err)
	}
	return d, nil
}

func (s *SQLiteStore) Put(ctx context.Context, def *Definition) error {
	var lastRun sql.NullString
	if def.LastRunAt != nil {
		lastRun = sql.NullString{String: formatTime(*def.LastRunAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO workflows (`+workflowColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
	input_dir = excluded.input_dir,
	output_dir = excluded.output_dir,
	output_format = excluded.output_format,
	quality = excluded.quality,
	recursive = excluded.recursive,
	enabled = excluded.enabled,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at,
	last_run_at = excluded.last_run_at,
	run_count = excluded.run_count`,
		def.Name, def.InputDir, def.OutputDir, string(def.Format), string(def.Quality), def.Recursive, def.Enabled,
		formatTime(def.CreatedAt), formatTime(def.UpdatedAt), lastRun, def.RunCount)
	if err != nil {
		return fmt.Errorf("sqlite: put workflow %q: %w", def.Name, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("sqlite: delete workflow %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_runs WHERE workflow = ?`, name); err != nil {
		return fmt.Errorf("sqlite: delete runs of %q: %w", name, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) List(ctx context.Context) ([]*Definition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list workflows: %w", err)
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan workflow: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// created_at is stored as text; re-sort on the parsed values.
	sortDefinitions(defs)
	return defs, nil
}

func (s *SQLiteStore) AppendRun(ctx context.Context, run *Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO workflow_runs (id, workflow, output_format, quality, started_at, finished_at,
	total_files, successful, failed, cancelled, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workflow, string(run.Format), string(run.Quality), formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.TotalFiles, run.Successful, run.Failed, run.Cancelled, run.Error); err != nil {
		return fmt.Errorf("sqlite: insert run %s: %w", run.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM workflow_runs WHERE workflow = ? AND rowid NOT IN (
	SELECT rowid FROM workflow_runs WHERE workflow = ? ORDER BY rowid DESC LIMIT ?
)`, run.Workflow, run.Workflow, RunHistoryLimit); err != nil {
		return fmt.Errorf("sqlite: trim runs of %q: %w", run.Workflow, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListRuns(ctx context.Context, name string) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, workflow, output_format, quality, started_at, finished_at,
	total_files, successful, failed, cancelled, error
FROM workflow_runs WHERE workflow = ? ORDER BY rowid`, name)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs of %q: %w", name, err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		var (
			r                 Run
			format, quality   string
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Workflow, &format, &quality, &started, &finished,
			&r.TotalFiles, &r.Successful, &r.Failed, &r.Cancelled, &r.Error); err != nil {
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}
		r.Format = docconv.Format(format)
		r.Quality = docconv.Quality(quality)
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
