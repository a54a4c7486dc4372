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
var _ driven.IncidentStore = (*IncidentRepo)(nil)

// IncidentRepo is the SQLite implementation of the IncidentStore port
// interface. It holds only lifecycle fields; folder size and presence are
// read from disk by the caller.
type IncidentRepo struct {
	db *DB
}

// NewIncidentRepo creates a new IncidentRepo backed by the given DB.
func NewIncidentRepo(db *DB) *IncidentRepo {
	return &IncidentRepo{db: db}
}

// UpsertStatus inserts or updates summary, status and last_checked. The
// marked_for_deletion flag of an existing row is left untouched.
func (r *IncidentRepo) UpsertStatus(ctx context.Context, inc model.Incident) error {
	const query = `
		INSERT INTO incidents (issue_key, summary, status, last_checked, marked_for_deletion)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(issue_key) DO UPDATE SET
			summary = excluded.summary,
			status = excluded.status,
			last_checked = excluded.last_checked`
	_, err := r.db.Writer.ExecContext(ctx, query,
		inc.Key, inc.Summary, string(inc.Status), formatTime(inc.LastChecked))
	if err != nil {
		return fmt.Errorf("upsert incident %s: %w", inc.Key, err)
	}
	return nil
}

// Get returns the record for issueKey. Returns (nil, nil) if absent.
func (r *IncidentRepo) Get(ctx context.Context, issueKey string) (*model.Incident, error) {
	const query = `
		SELECT issue_key, summary, status, last_checked, marked_for_deletion
		FROM incidents WHERE issue_key = ?`
	inc, err := scanIncident(r.db.Reader.QueryRowContext(ctx, query, issueKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get incident %s: %w", issueKey, err)
	}
	return inc, nil
}

// ListAll returns every record ordered by issue key.
func (r *IncidentRepo) ListAll(ctx context.Context) ([]model.Incident, error) {
	const query = `
		SELECT issue_key, summary, status, last_checked, marked_for_deletion
		FROM incidents ORDER BY issue_key`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	incidents := []model.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return incidents, nil
}

// SetMarked sets or clears the marked-for-deletion flag. Marking an issue
// with no record yet creates one with an unknown status.
func (r *IncidentRepo) SetMarked(ctx context.Context, issueKey string, marked bool) error {
	const query = `
		INSERT INTO incidents (issue_key, last_checked, marked_for_deletion)
		VALUES (?, ?, ?)
		ON CONFLICT(issue_key) DO UPDATE SET marked_for_deletion = excluded.marked_for_deletion`
	_, err := r.db.Writer.ExecContext(ctx, query, issueKey, formatTime(zeroTime), boolToInt(marked))
	if err != nil {
		return fmt.Errorf("set marked on incident %s: %w", issueKey, err)
	}
	return nil
}

// Delete removes the record for issueKey. No-op if absent.
func (r *IncidentRepo) Delete(ctx context.Context, issueKey string) error {
	const query = `DELETE FROM incidents WHERE issue_key = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, issueKey); err != nil {
		return fmt.Errorf("delete incident %s: %w", issueKey, err)
	}
	return nil
}

func scanIncident(s scanner) (*model.Incident, error) {
	var inc model.Incident
	var status, lastChecked string
	var marked int
	if err := s.Scan(&inc.Key, &inc.Summary, &status, &lastChecked, &marked); err != nil {
		return nil, err
	}
	inc.Status = model.IssueStatus(status)
	inc.MarkedForDeletion = marked != 0

	t, err := parseTime(lastChecked)
	if err != nil {
		return nil, fmt.Errorf("parse last_checked: %w", err)
	}
	if !t.Equal(zeroTime) {
		inc.LastChecked = t
	}
	return &inc, nil
}
