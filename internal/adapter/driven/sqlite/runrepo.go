package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RunStore = (*RunRepo)(nil)

// RunRepo is the SQLite implementation of the RunStore port interface.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo backed by the given DB.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// RecordRun inserts the run and its file rows in one transaction.
func (r *RunRepo) RecordRun(ctx context.Context, run model.SyncRun, files []model.SyncRunFile) (err error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record run %s: %w", run.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const runQuery = `
		INSERT INTO sync_runs (id, started_at, finished_at, dry_run, issues, downloaded, present, failed, bytes, fatal_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, runQuery,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), boolToInt(run.DryRun),
		run.Issues, run.Downloaded, run.Present, run.Failed, run.Bytes, run.FatalError,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	const fileQuery = `
		INSERT INTO sync_run_files (run_id, issue_key, attachment_id, filename, path, outcome, bytes, failure_kind, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, fileQuery)
	if err != nil {
		return fmt.Errorf("prepare run files: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		_, err = stmt.ExecContext(ctx,
			run.ID, f.IssueKey, f.AttachmentID, f.Filename, f.Path,
			string(f.Outcome), f.Bytes, string(f.FailureKind), f.Message,
		)
		if err != nil {
			return fmt.Errorf("insert run file %s/%s: %w", f.IssueKey, f.Filename, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns up to limit runs ordered by started_at DESC. A
// non-positive limit returns every run.
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = -1
	}

	const query = `
		SELECT id, started_at, finished_at, dry_run, issues, downloaded, present, failed, bytes, fatal_error
		FROM sync_runs ORDER BY started_at DESC LIMIT ?`
	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []model.SyncRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run and its files in insertion order.
// Returns (nil, nil, nil) if the run does not exist.
func (r *RunRepo) GetRun(ctx context.Context, id string) (*model.SyncRun, []model.SyncRunFile, error) {
	const runQuery = `
		SELECT id, started_at, finished_at, dry_run, issues, downloaded, present, failed, bytes, fatal_error
		FROM sync_runs WHERE id = ?`
	run, err := scanRun(r.db.Reader.QueryRowContext(ctx, runQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	const fileQuery = `
		SELECT run_id, issue_key, attachment_id, filename, path, outcome, bytes, failure_kind, message
		FROM sync_run_files WHERE run_id = ? ORDER BY id`
	rows, err := r.db.Reader.QueryContext(ctx, fileQuery, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list files of run %s: %w", id, err)
	}
	defer rows.Close()

	files := []model.SyncRunFile{}
	for rows.Next() {
		var f model.SyncRunFile
		var outcome, kind string
		if err := rows.Scan(&f.RunID, &f.IssueKey, &f.AttachmentID, &f.Filename, &f.Path,
			&outcome, &f.Bytes, &kind, &f.Message); err != nil {
			return nil, nil, fmt.Errorf("scan run file: %w", err)
		}
		f.Outcome = model.FetchOutcome(outcome)
		f.FailureKind = model.FailureKind(kind)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate run files: %w", err)
	}

	return run, files, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*model.SyncRun, error) {
	var run model.SyncRun
	var startedAt, finishedAt string
	var dryRun int
	err := s.Scan(&run.ID, &startedAt, &finishedAt, &dryRun,
		&run.Issues, &run.Downloaded, &run.Present, &run.Failed, &run.Bytes, &run.FatalError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.DryRun = dryRun != 0
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = parseTime(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &run, nil
}
