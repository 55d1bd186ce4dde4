// Package store keeps an optional SQLite copy of the pipeline outputs and a
// history of runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scuartasr/tfm-tuberc/internal/store/migrations"
	"github.com/scuartasr/tfm-tuberc/internal/table"
	"github.com/scuartasr/tfm-tuberc/internal/utils"
)

// Store provides SQLite-backed persistence for exported tables.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating when needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := utils.EnsureDir(filepath.Dir(cleanPath)); err != nil {
		return nil, fmt.Errorf("mkdir sqlite dir: %w", err)
	}
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// WriteTable replaces the SQLite table named after t with its contents. All
// columns are TEXT; empty cells are stored as NULL.
func (s *Store) WriteTable(ctx context.Context, runID string, t *table.Table) error {
	if t.Name == "" || len(t.Header) == 0 {
		return fmt.Errorf("write table: name and header are required")
	}
	cols := make([]string, len(t.Header))
	marks := make([]string, len(t.Header))
	for i, h := range t.Header {
		cols[i] = quoteIdent(h) + " TEXT"
		marks[i] = "?"
	}
	name := quoteIdent(t.Name)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", t.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("drop %s: %w", t.Name, err)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+name+" ("+strings.Join(cols, ", ")+")"); err != nil {
		return fmt.Errorf("create %s: %w", t.Name, err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+name+" VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", t.Name, err)
	}
	defer stmt.Close()
	args := make([]any, len(t.Header))
	for i, row := range t.Rows {
		for j := range args {
			if v := table.Cell(row, j); v != "" {
				args[j] = v
			} else {
				args[j] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", t.Name, i+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO exported_tables (name, run_id, row_count, column_count, exported_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET run_id = excluded.run_id, row_count = excluded.row_count,
    column_count = excluded.column_count, exported_at = excluded.exported_at`,
		t.Name, runID, len(t.Rows), len(t.Header), time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("record export %s: %w", t.Name, err)
	}
	return tx.Commit()
}

// CountRows returns the number of rows in an exported table.
func (s *Store) CountRows(ctx context.Context, name string) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// Run is one pipeline execution.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      string
	FilesOK     int
	FilesFailed int
	Warnings    int
	OutputDir   string
}

// RecordRun inserts or replaces a run.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	_, err := s.sqlDB.ExecContext(ctx, `INSERT OR REPLACE INTO pipeline_runs
(id, started_at, finished_at, status, files_ok, files_failed, warnings, output_dir)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().UnixMilli(), r.FinishedAt.UTC().UnixMilli(), r.Status,
		r.FilesOK, r.FilesFailed, r.Warnings, r.OutputDir)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// Runs lists recorded runs, most recent first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, started_at, finished_at, status, files_ok, files_failed, warnings, output_dir
FROM pipeline_runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.FilesOK, &r.FilesFailed, &r.Warnings, &r.OutputDir); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, r.FinishedAt = time.UnixMilli(started).UTC(), time.UnixMilli(finished).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
