// SQLite run history
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	hosterrors "adaptive-mesh/pkg/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps runs in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, hosterrors.HistoryError("open", errors.New("empty database path"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, hosterrors.HistoryError("open", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, hosterrors.HistoryError("open", err)
	}
	// One writer; WAL lets readers proceed.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, path: path}
	if err := s.initPragmas(); err != nil {
		_ = db.Close()
		return nil, hosterrors.HistoryError("open", err)
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, hosterrors.HistoryError("open", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) initPragmas() error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("%s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			source TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			result TEXT NOT NULL,
			command TEXT NOT NULL DEFAULT '',
			min_x REAL NOT NULL DEFAULT 0,
			max_x REAL NOT NULL DEFAULT 0,
			min_y REAL NOT NULL DEFAULT 0,
			max_y REAL NOT NULL DEFAULT 0,
			bed_width REAL NOT NULL DEFAULT 0,
			bed_height REAL NOT NULL DEFAULT 0,
			spacing INTEGER NOT NULL DEFAULT 0,
			x_offset INTEGER NOT NULL DEFAULT 0,
			y_offset INTEGER NOT NULL DEFAULT 0,
			layers INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS runs_started_idx ON runs(started_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

const runColumns = `id, filename, source, started_at, duration_ns, result, command,
	min_x, max_x, min_y, max_y, bed_width, bed_height, spacing,
	x_offset, y_offset, layers, bytes, error`

func (s *SQLiteStore) Record(ctx context.Context, run Run) (Run, error) {
	run = prepare(run)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Filename, run.Source, run.StartedAt.UnixNano(), int64(run.Duration),
		run.Result, run.Command,
		run.MinX, run.MaxX, run.MinY, run.MaxY, run.BedWidth, run.BedHeight, run.Spacing,
		run.XOffset, run.YOffset, run.Layers, run.Bytes, run.Error,
	)
	if err != nil {
		return Run{}, hosterrors.HistoryError("record", err)
	}
	return run, nil
}

func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	opts = opts.normalized()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, opts.Limit, opts.Start)
	if err != nil {
		return nil, hosterrors.HistoryError("list", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, hosterrors.HistoryError("list", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, hosterrors.HistoryError("list", err)
	}
	return runs, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, hosterrors.HistoryError("get", err)
	}
	return run, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return hosterrors.HistoryError("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return hosterrors.HistoryError("delete", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	var longest int64
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(bytes), 0),
		COALESCE(MAX(duration_ns), 0)
		FROM runs`, ResultInserted, ResultPassThrough, ResultError,
	).Scan(&t.Runs, &t.Inserted, &t.PassThrough, &t.Errors, &t.Bytes, &longest)
	if err != nil {
		return Totals{}, hosterrors.HistoryError("totals", err)
	}
	t.Longest = time.Duration(longest)
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (Run, error) {
	var run Run
	var started, duration int64
	err := r.Scan(
		&run.ID, &run.Filename, &run.Source, &started, &duration, &run.Result, &run.Command,
		&run.MinX, &run.MaxX, &run.MinY, &run.MaxY, &run.BedWidth, &run.BedHeight, &run.Spacing,
		&run.XOffset, &run.YOffset, &run.Layers, &run.Bytes, &run.Error,
	)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, started)
	run.Duration = time.Duration(duration)
	return run, nil
}
