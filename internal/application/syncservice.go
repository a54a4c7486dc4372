// Package application contains the sync and cleanup use cases.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// SyncOptions controls a single sync pass.
type SyncOptions struct {
	// DryRun plans without downloading or updating incident records.
	DryRun bool

	// IssueKeys limits the pass to these issues instead of the configured
	// query. Closed issues are included when named explicitly.
	IssueKeys []string
}

// SyncService runs sync passes: list remote issues, plan against the local
// tree, download the delta and record the outcome.
type SyncService struct {
	trackers  *TrackerProvider
	store     driven.AttachmentStore
	runs      driven.RunStore
	incidents driven.IncidentStore
	jql       string
	workers   int

	mu  sync.Mutex // one pass at a time
	now func() time.Time
}

// NewSyncService creates a SyncService. runs and incidents may be nil, in
// which case nothing is recorded.
func NewSyncService(
	trackers *TrackerProvider,
	store driven.AttachmentStore,
	runs driven.RunStore,
	incidents driven.IncidentStore,
	jql string,
	workers int,
) *SyncService {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &SyncService{
		trackers:  trackers,
		store:     store,
		runs:      runs,
		incidents: incidents,
		jql:       jql,
		workers:   workers,
		now:       time.Now,
	}
}

// Run performs one pass. The report is always returned; the error is
// report.Fatal when the pass stopped early.
func (s *SyncService) Run(ctx context.Context, opts SyncOptions) (*model.SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &model.SyncReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
		DryRun:    opts.DryRun,
		Results:   []model.FetchResult{},
	}
	log := slog.With("run_id", report.RunID)
	log.Info("sync pass started", "dry_run", opts.DryRun, "issues", opts.IssueKeys)

	s.pass(ctx, opts, report)

	report.FinishedAt = s.now()
	s.record(ctx, report)

	if report.Fatal != nil {
		log.Error("sync pass aborted", "error", report.Fatal)
		return report, report.Fatal
	}
	log.Info("sync pass complete",
		"issues", len(report.Issues),
		"downloaded", report.Downloaded(),
		"present", report.Present(),
		"failed", report.Failed(),
		"pending", len(report.Pending),
		"bytes", report.Bytes(),
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)
	return report, nil
}

func (s *SyncService) pass(ctx context.Context, opts SyncOptions, report *model.SyncReport) {
	tracker, err := s.trackers.Get(ctx)
	if err != nil {
		report.Fatal = newSyncError(err, "", "")
		return
	}

	issues, listErrs, fatal := s.collect(ctx, tracker, opts.IssueKeys)
	if fatal != nil {
		if fatal.Kind == model.FailureAuth {
			s.trackers.Reset()
		}
		report.Fatal = fatal
		return
	}

	plan := NewPlanner(s.store).Plan(issues)
	for i := range plan.Issues {
		plan.Issues[i].Error = listErrs[i]
	}
	report.Issues = plan.Issues

	if opts.DryRun {
		for _, entry := range plan.Entries {
			if entry.Action == model.ActionDownload && entry.ConflictsWith == "" {
				report.Pending = append(report.Pending, entry)
				continue
			}
			report.Results = append(report.Results, NewExecutor(nil, s.store, 1).ExecuteEntry(ctx, entry))
		}
		return
	}

	report.Results = NewExecutor(tracker, s.store, s.workers).Execute(ctx, plan.Entries)
	for _, res := range report.Results {
		if res.Failure != nil && res.Failure.Kind.IsPassFatal() {
			report.Fatal = res.Failure
			s.trackers.Reset()
			break
		}
	}

	s.updateIncidents(ctx, plan.Issues)
}

// collect fetches the issues of this pass with their attachments. A failure
// to list one issue's attachments is returned in listErrs at that issue's
// index; the issue then contributes no entries. A pass-fatal failure cancels
// the listing calls not yet made and ends the pass.
func (s *SyncService) collect(ctx context.Context, tracker driven.TrackerClient, keys []string) ([]model.Issue, []*model.SyncError, *model.SyncError) {
	var issues []model.Issue
	keys = uniqueIssueKeys(keys)
	explicit := len(keys) > 0

	if explicit {
		issues = make([]model.Issue, len(keys))
		for i, key := range keys {
			issues[i] = model.Issue{Key: key}
		}
	} else {
		listed, err := tracker.ListRelevantIssues(ctx, s.jql)
		if err != nil {
			return nil, nil, newSyncError(fmt.Errorf("list issues: %w", err), "", "")
		}
		issues = listed
	}

	listErrs := make([]*model.SyncError, len(issues))

	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range issues {
		key := issues[i].Key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				listErrs[i] = newSyncError(err, key, "")
				return nil
			}

			if explicit {
				issue, err := tracker.GetIssue(gctx, key)
				if err != nil {
					listErrs[i] = listFailure(err, key, cancel)
					return nil
				}
				issues[i] = *issue
				return nil
			}

			atts, err := tracker.ListAttachments(gctx, key)
			if err != nil {
				listErrs[i] = listFailure(err, key, cancel)
				return nil
			}
			issues[i].Attachments = atts
			return nil
		})
	}
	_ = g.Wait()

	for _, se := range listErrs {
		if se != nil && se.Kind.IsPassFatal() {
			return nil, nil, se
		}
	}
	for i, se := range listErrs {
		if se == nil {
			continue
		}
		slog.Warn("skipping issue", "issue", issues[i].Key, "kind", se.Kind, "error", se.Err)
		issues[i].Attachments = nil
	}

	return issues, listErrs, nil
}

// listFailure classifies a listing error and cancels the remaining calls
// when it is pass-fatal.
func listFailure(err error, key string, cancel context.CancelFunc) *model.SyncError {
	se := newSyncError(err, key, "")
	if se.Kind.IsPassFatal() {
		cancel()
	}
	return se
}

// uniqueIssueKeys normalizes explicit keys and drops repeats, keeping the
// first occurrence. Input that is not a key is kept upper-cased so the
// tracker can report it as not found.
func uniqueIssueKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, raw := range keys {
		key, ok := model.ParseIssueKey(raw)
		if !ok {
			key = strings.ToUpper(strings.TrimSpace(raw))
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func (s *SyncService) updateIncidents(ctx context.Context, issues []model.IssuePlan) {
	if s.incidents == nil {
		return
	}
	checked := s.now()
	for _, ip := range issues {
		if ip.Error != nil {
			continue
		}
		err := s.incidents.UpsertStatus(ctx, model.Incident{
			Key:         ip.Key,
			Summary:     ip.Summary,
			Status:      ip.Status,
			LastChecked: checked,
		})
		if err != nil {
			slog.Error("update incident status failed", "issue", ip.Key, "error", err)
		}
	}
}

func (s *SyncService) record(ctx context.Context, report *model.SyncReport) {
	if s.runs == nil {
		return
	}

	run := model.SyncRun{
		ID:         report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		DryRun:     report.DryRun,
		Issues:     len(report.Issues),
		Downloaded: report.Downloaded(),
		Present:    report.Present(),
		Failed:     report.Failed(),
		Bytes:      report.Bytes(),
	}
	if report.Fatal != nil {
		run.FatalError = report.Fatal.Error()
	}

	files := make([]model.SyncRunFile, 0, len(report.Results))
	for _, res := range report.Results {
		f := model.SyncRunFile{
			IssueKey:     res.Entry.IssueKey,
			AttachmentID: res.Entry.Attachment.ID,
			Filename:     res.Entry.Attachment.Filename,
			Path:         res.Path,
			Outcome:      res.Outcome,
			Bytes:        res.Bytes,
		}
		if res.Failure != nil {
			f.FailureKind = res.Failure.Kind
			f.Message = res.Failure.Message()
		}
		files = append(files, f)
	}

	// The pass itself may have been canceled; history is still written.
	if err := s.runs.RecordRun(context.WithoutCancel(ctx), run, files); err != nil {
		slog.Error("record sync run failed", "run_id", run.ID, "error", err)
	}
}
