package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// ErrInvalidIssueKey is returned for input that is neither an issue key nor
// an issue URL.
var ErrInvalidIssueKey = errors.New("invalid issue key")

// CleanupService manages local incident folders: listing them with their
// lifecycle state, refreshing that state from the tracker, and deleting them.
type CleanupService struct {
	trackers  *TrackerProvider
	folders   driven.IncidentFolders
	incidents driven.IncidentStore
	now       func() time.Time
}

// NewCleanupService creates a CleanupService.
func NewCleanupService(trackers *TrackerProvider, folders driven.IncidentFolders, incidents driven.IncidentStore) *CleanupService {
	return &CleanupService{
		trackers:  trackers,
		folders:   folders,
		incidents: incidents,
		now:       time.Now,
	}
}

// ListIncidents returns every issue that has a local folder or a ledger
// record, ordered by key, with folder size and presence read from disk.
func (s *CleanupService) ListIncidents(ctx context.Context) ([]model.Incident, error) {
	keys, err := s.folders.ListIssueDirs()
	if err != nil {
		return nil, err
	}
	records, err := s.incidents.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]model.Incident, len(keys)+len(records))
	for _, rec := range records {
		byKey[rec.Key] = rec
	}
	for _, key := range keys {
		inc, ok := byKey[key]
		if !ok {
			inc = model.Incident{Key: key}
		}
		inc.OnDisk = true
		byKey[key] = inc
	}

	incidents := make([]model.Incident, 0, len(byKey))
	for _, inc := range byKey {
		if inc.OnDisk {
			size, err := s.folders.FolderSize(inc.Key)
			if err != nil {
				slog.Warn("folder size failed", "issue", inc.Key, "error", err)
			}
			inc.FolderSize = size
		}
		incidents = append(incidents, inc)
	}
	sort.Slice(incidents, func(i, j int) bool { return incidents[i].Key < incidents[j].Key })

	return incidents, nil
}

// RefreshStatuses re-reads the status of every local incident from the
// tracker. Closed issues drop out of the sync query, so this is the only way
// their records learn about the closure. Per-issue failures are logged and
// skipped; an authentication failure stops the refresh.
func (s *CleanupService) RefreshStatuses(ctx context.Context) (int, error) {
	tracker, err := s.trackers.Get(ctx)
	if err != nil {
		return 0, err
	}

	keys, err := s.folders.ListIssueDirs()
	if err != nil {
		return 0, err
	}

	var refreshed int
	for _, key := range keys {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}

		issue, err := tracker.GetIssue(ctx, key)
		if err != nil {
			se := newSyncError(err, key, "")
			if se.Kind.IsPassFatal() {
				s.trackers.Reset()
				return refreshed, se
			}
			slog.Warn("refresh incident status failed", "issue", key, "kind", se.Kind, "error", err)
			continue
		}

		err = s.incidents.UpsertStatus(ctx, model.Incident{
			Key:         key,
			Summary:     issue.Summary,
			Status:      issue.Status,
			LastChecked: s.now(),
		})
		if err != nil {
			return refreshed, fmt.Errorf("update incident %s: %w", key, err)
		}
		refreshed++
	}

	slog.Info("incident statuses refreshed", "incidents", len(keys), "refreshed", refreshed)
	return refreshed, nil
}

// Mark flags an incident for deletion. input may be a key or an issue URL.
func (s *CleanupService) Mark(ctx context.Context, input string) (string, error) {
	return s.setMarked(ctx, input, true)
}

// Unmark clears the deletion flag.
func (s *CleanupService) Unmark(ctx context.Context, input string) (string, error) {
	return s.setMarked(ctx, input, false)
}

func (s *CleanupService) setMarked(ctx context.Context, input string, marked bool) (string, error) {
	key, ok := model.ParseIssueKey(input)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidIssueKey, input)
	}
	if err := s.incidents.SetMarked(ctx, key, marked); err != nil {
		return "", err
	}
	return key, nil
}

// DeleteIncident removes the incident's folder and its ledger record.
func (s *CleanupService) DeleteIncident(ctx context.Context, input string) (string, error) {
	key, ok := model.ParseIssueKey(input)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidIssueKey, input)
	}
	if err := s.folders.DeleteIssueDir(key); err != nil {
		return "", err
	}
	if err := s.incidents.Delete(ctx, key); err != nil {
		return "", err
	}
	slog.Info("incident deleted", "issue", key)
	return key, nil
}

// DeleteMarked deletes every incident flagged for deletion and returns the
// deleted keys. It stops at the first failure.
func (s *CleanupService) DeleteMarked(ctx context.Context) ([]string, error) {
	records, err := s.incidents.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	deleted := []string{}
	for _, rec := range records {
		if !rec.MarkedForDeletion {
			continue
		}
		if _, err := s.DeleteIncident(ctx, rec.Key); err != nil {
			return deleted, err
		}
		deleted = append(deleted, rec.Key)
	}
	return deleted, nil
}
