package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// DefaultWorkers is the number of concurrent downloads when none is configured.
const DefaultWorkers = 4

// Executor carries out the download entries of a plan.
type Executor struct {
	tracker driven.TrackerClient
	store   driven.AttachmentStore
	workers int
}

// NewExecutor creates an Executor running at most workers downloads at once.
func NewExecutor(tracker driven.TrackerClient, store driven.AttachmentStore, workers int) *Executor {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Executor{tracker: tracker, store: store, workers: workers}
}

// Execute runs every entry and returns one result per entry in input order.
// A failed entry does not affect the others, except for pass-fatal failures
// (authentication) which cancel everything not yet finished. Entries that
// never started after cancellation are reported as canceled.
func (e *Executor) Execute(ctx context.Context, entries []model.SyncPlanEntry) []model.FetchResult {
	results := make([]model.FetchResult, len(entries))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(e.workers)

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			results[i] = canceledResult(entry, err)
			continue
		}

		g.Go(func() error {
			res := e.ExecuteEntry(ctx, entry)
			results[i] = res
			if res.Failure != nil && res.Failure.Kind.IsPassFatal() {
				slog.Error("aborting downloads", "issue", entry.IssueKey, "error", res.Failure)
				cancel()
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// ExecuteEntry runs a single entry. Entries already on disk never touch the
// network.
func (e *Executor) ExecuteEntry(ctx context.Context, entry model.SyncPlanEntry) model.FetchResult {
	res := model.FetchResult{Entry: entry, Path: entry.Path}
	att := entry.Attachment

	if entry.ConflictsWith != "" {
		res.Outcome = model.OutcomeFailed
		res.Failure = &model.SyncError{
			Kind:     model.FailureConflict,
			IssueKey: entry.IssueKey,
			Filename: att.Filename,
			Err:      fmt.Errorf("same target path as attachment %s", entry.ConflictsWith),
		}
		return res
	}

	if entry.Action == model.ActionAlreadyPresent {
		res.Outcome = model.OutcomeAlreadyPresent
		return res
	}

	if err := ctx.Err(); err != nil {
		return canceledResult(entry, err)
	}

	body, err := e.tracker.OpenAttachment(ctx, att)
	if err != nil {
		return failedResult(res, err)
	}
	defer body.Close()

	path, n, err := e.store.Write(ctx, entry.IssueKey, att, &transferReader{r: body})
	res.Bytes = n
	if path != "" {
		res.Path = path
	}
	if err != nil {
		res.Bytes = 0
		return failedResult(res, err)
	}

	res.Outcome = model.OutcomeDownloaded
	slog.Info("downloaded attachment", "issue", entry.IssueKey, "file", att.Filename, "bytes", n)
	return res
}

func failedResult(res model.FetchResult, err error) model.FetchResult {
	res.Outcome = model.OutcomeFailed
	res.Failure = newSyncError(err, res.Entry.IssueKey, res.Entry.Attachment.Filename)
	slog.Warn("attachment download failed",
		"issue", res.Entry.IssueKey,
		"file", res.Entry.Attachment.Filename,
		"kind", res.Failure.Kind,
		"error", err,
	)
	return res
}

func canceledResult(entry model.SyncPlanEntry, err error) model.FetchResult {
	return model.FetchResult{
		Entry:   entry,
		Path:    entry.Path,
		Outcome: model.OutcomeFailed,
		Failure: &model.SyncError{
			Kind:     model.FailureCanceled,
			IssueKey: entry.IssueKey,
			Filename: entry.Attachment.Filename,
			Err:      err,
		},
	}
}

// transferReader marks read failures of a remote body as network errors so
// they are not mistaken for local write failures.
type transferReader struct {
	r io.Reader
}

func (t *transferReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", driven.ErrNetwork, err)
	}
	return n, err
}
