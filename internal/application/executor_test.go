package application_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/jiradl/internal/application"
	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

func TestExecutor_PartialFailureIsIsolated(t *testing.T) {
	store := newMemStore()
	tracker := &mockTracker{
		open: func(_ context.Context, a model.Attachment) (io.ReadCloser, error) {
			if a.ID == "2" {
				return nil, fmt.Errorf("GET content: %w", driven.ErrNetwork)
			}
			return io.NopCloser(strings.NewReader("body-" + a.ID)), nil
		},
	}
	entries := []model.SyncPlanEntry{
		downloadEntry(store, att("ABC-1", "1", "a.txt")),
		downloadEntry(store, att("ABC-1", "2", "b.txt")),
		downloadEntry(store, att("ABC-1", "3", "c.txt")),
	}

	results := application.NewExecutor(tracker, store, 3).Execute(context.Background(), entries)

	require.Len(t, results, 3)
	assert.Equal(t, model.OutcomeDownloaded, results[0].Outcome)
	assert.Equal(t, int64(6), results[0].Bytes)
	assert.Equal(t, model.OutcomeFailed, results[1].Outcome)
	require.NotNil(t, results[1].Failure)
	assert.Equal(t, model.FailureNetwork, results[1].Failure.Kind)
	assert.Equal(t, "ABC-1", results[1].Failure.IssueKey)
	assert.Equal(t, "b.txt", results[1].Failure.Filename)
	assert.Equal(t, model.OutcomeDownloaded, results[2].Outcome)
	assert.Equal(t, 2, store.writes)
	assert.Equal(t, "Error: GET content: network error", results[1].Label())
}

func TestExecutor_AlreadyPresentMakesNoNetworkCalls(t *testing.T) {
	store := newMemStore()
	tracker := &mockTracker{}
	entries := make([]model.SyncPlanEntry, 0, 5)
	for i := range 5 {
		e := downloadEntry(store, att("ABC-1", fmt.Sprint(i), fmt.Sprintf("f%d.txt", i)))
		e.Action = model.ActionAlreadyPresent
		entries = append(entries, e)
	}

	results := application.NewExecutor(tracker, store, 4).Execute(context.Background(), entries)

	require.Len(t, results, 5)
	for _, r := range results {
		assert.Equal(t, model.OutcomeAlreadyPresent, r.Outcome)
		assert.Zero(t, r.Bytes)
		assert.Equal(t, "On disk ✓", r.Label())
	}
	assert.Zero(t, tracker.openCalls.Load())
	assert.Zero(t, store.writes)
}

func TestExecutor_CanceledBeforeStart(t *testing.T) {
	store := newMemStore()
	tracker := &mockTracker{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := application.NewExecutor(tracker, store, 2).Execute(ctx, []model.SyncPlanEntry{
		downloadEntry(store, att("ABC-1", "1", "a.txt")),
		downloadEntry(store, att("ABC-1", "2", "b.txt")),
	})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, model.OutcomeFailed, r.Outcome)
		assert.Equal(t, model.FailureCanceled, r.Failure.Kind)
	}
	assert.Zero(t, tracker.openCalls.Load())
	assert.Zero(t, store.writes)
}

func TestExecutor_CancelMidPass(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	tracker := &mockTracker{
		open: func(ctx context.Context, a model.Attachment) (io.ReadCloser, error) {
			if calls.Add(1) == 2 {
				cancel()
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return io.NopCloser(strings.NewReader("x")), nil
		},
	}
	entries := []model.SyncPlanEntry{
		downloadEntry(store, att("ABC-1", "1", "a.txt")),
		downloadEntry(store, att("ABC-1", "2", "b.txt")),
		downloadEntry(store, att("ABC-1", "3", "c.txt")),
		downloadEntry(store, att("ABC-1", "4", "d.txt")),
	}

	results := application.NewExecutor(tracker, store, 1).Execute(ctx, entries)

	require.Len(t, results, 4)
	assert.Equal(t, model.OutcomeDownloaded, results[0].Outcome)
	for _, r := range results[1:] {
		assert.Equal(t, model.OutcomeFailed, r.Outcome)
		assert.Equal(t, model.FailureCanceled, r.Failure.Kind)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, store.writes)
}

func TestExecutor_AuthFailureAbortsRemaining(t *testing.T) {
	store := newMemStore()
	tracker := &mockTracker{
		open: func(_ context.Context, _ model.Attachment) (io.ReadCloser, error) {
			return nil, fmt.Errorf("GET content: %w", driven.ErrAuth)
		},
	}
	entries := []model.SyncPlanEntry{
		downloadEntry(store, att("ABC-1", "1", "a.txt")),
		downloadEntry(store, att("ABC-1", "2", "b.txt")),
		downloadEntry(store, att("ABC-1", "3", "c.txt")),
	}

	results := application.NewExecutor(tracker, store, 1).Execute(context.Background(), entries)

	require.Len(t, results, 3)
	assert.Equal(t, model.FailureAuth, results[0].Failure.Kind)
	assert.Equal(t, model.FailureCanceled, results[1].Failure.Kind)
	assert.Equal(t, model.FailureCanceled, results[2].Failure.Kind)
	assert.Equal(t, int32(1), tracker.openCalls.Load())
}

func TestExecutor_InterruptedBodyIsNetworkFailure(t *testing.T) {
	store := newMemStore()
	tracker := &mockTracker{
		open: func(_ context.Context, _ model.Attachment) (io.ReadCloser, error) {
			return &errReader{prefix: "partial"}, nil
		},
	}

	res := application.NewExecutor(tracker, store, 1).ExecuteEntry(context.Background(), downloadEntry(store, att("ABC-1", "1", "a.bin")))

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Equal(t, model.FailureNetwork, res.Failure.Kind)
	assert.Zero(t, res.Bytes)
	assert.False(t, store.Exists("ABC-1", att("ABC-1", "1", "a.bin")))
}

func TestExecutor_LocalWriteFailureIsIO(t *testing.T) {
	store := newMemStore()
	store.failFor["a.txt"] = fmt.Errorf("create directory: permission denied")

	res := application.NewExecutor(&mockTracker{}, store, 1).ExecuteEntry(context.Background(), downloadEntry(store, att("ABC-1", "1", "a.txt")))

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Equal(t, model.FailureIO, res.Failure.Kind)
}

func TestExecutor_ConflictIsReportedWithoutWrite(t *testing.T) {
	store := newMemStore()
	tracker := &mockTracker{}
	first := downloadEntry(store, att("ABC-1", "1", "shot.png"))
	second := downloadEntry(store, att("ABC-1", "2", "shot.png"))
	second.ConflictsWith = "1"

	results := application.NewExecutor(tracker, store, 2).Execute(context.Background(), []model.SyncPlanEntry{first, second})

	assert.Equal(t, model.OutcomeDownloaded, results[0].Outcome)
	assert.Equal(t, model.OutcomeFailed, results[1].Outcome)
	assert.Equal(t, model.FailureConflict, results[1].Failure.Kind)
	assert.Equal(t, int32(1), tracker.openCalls.Load())
	assert.Equal(t, 1, store.writes)
}

func TestExecutor_BoundedParallelism(t *testing.T) {
	store := newMemStore()
	var inFlight, peak atomic.Int32
	tracker := &mockTracker{
		open: func(_ context.Context, _ model.Attachment) (io.ReadCloser, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return io.NopCloser(strings.NewReader("x")), nil
		},
	}
	entries := make([]model.SyncPlanEntry, 0, 12)
	for i := range 12 {
		entries = append(entries, downloadEntry(store, att("ABC-1", fmt.Sprint(i), fmt.Sprintf("f%d", i))))
	}

	results := application.NewExecutor(tracker, store, 3).Execute(context.Background(), entries)

	require.Len(t, results, 12)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 12, store.writes)
}
