// Package store persists verification runs and their violations to a
// DuckDB database so past results stay queryable after the terminal
// output is gone.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/tracecheck/tracecheck/pkg/checker"
	"github.com/tracecheck/tracecheck/pkg/errors"
)

// Store is a DuckDB-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreFailed, "failed to open history database").
			WithContext("path", path)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          VARCHAR NOT NULL,
			log         VARCHAR NOT NULL,
			started_at  TIMESTAMP NOT NULL,
			lines       BIGINT NOT NULL,
			bytes       BIGINT NOT NULL,
			duration_ms BIGINT NOT NULL,
			passed      BOOLEAN NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeStoreFailed, "failed to create runs table")
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS violations (
			run_id      VARCHAR NOT NULL,
			checker     VARCHAR NOT NULL,
			kind        VARCHAR NOT NULL,
			line_number INTEGER,
			line_text   VARCHAR,
			seq         BIGINT,
			node        VARCHAR,
			kernel      VARCHAR,
			expected_op VARCHAR,
			actual_op   VARCHAR,
			count       BIGINT
		)
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeStoreFailed, "failed to create violations table")
	}

	return &Store{db: db}, nil
}

// SaveRun persists one run report under the given run id.
func (s *Store) SaveRun(ctx context.Context, runID string, startedAt time.Time, report *checker.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreFailed, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, log, started_at, lines, bytes, duration_ms, passed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, report.Log, startedAt, report.LinesScanned, report.BytesRead,
		report.Duration.Milliseconds(), report.Passed(),
	); err != nil {
		return errors.Wrap(err, errors.CodeStoreFailed, "failed to insert run").
			WithContext("run", runID)
	}

	for _, res := range report.Results {
		for _, v := range res.Violations {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO violations (run_id, checker, kind, line_number, line_text,
					seq, node, kernel, expected_op, actual_op, count)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, res.Checker, v.Kind.String(), v.Line.Number, v.Line.Text,
				int64(v.Seq), v.Node, v.Kernel, v.ExpectedOp, v.ActualOp, v.Count,
			); err != nil {
				return errors.Wrap(err, errors.CodeStoreFailed, "failed to insert violation").
					WithContext("run", runID)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CodeStoreFailed, "failed to commit run")
	}
	return nil
}

// RunSummary is one row of the run history listing.
type RunSummary struct {
	ID         string
	Log        string
	StartedAt  time.Time
	Lines      int64
	Duration   time.Duration
	Passed     bool
	Violations int64
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.log, r.started_at, r.lines, r.duration_ms, r.passed,
		       (SELECT COUNT(*) FROM violations v WHERE v.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreFailed, "failed to query runs")
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var durationMS int64
		if err := rows.Scan(&rs.ID, &rs.Log, &rs.StartedAt, &rs.Lines,
			&durationMS, &rs.Passed, &rs.Violations); err != nil {
			return nil, errors.Wrap(err, errors.CodeStoreFailed, "failed to scan run row")
		}
		rs.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
