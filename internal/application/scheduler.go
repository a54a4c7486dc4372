package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

// syncRequest is a manual sync trigger.
type syncRequest struct {
	opts SyncOptions
	done chan syncResponse
}

type syncResponse struct {
	report *model.SyncReport
	err    error
}

// Scheduler runs sync passes on an interval and on demand, one at a time.
type Scheduler struct {
	sync     *SyncService
	interval time.Duration
	triggers chan syncRequest

	mu   sync.RWMutex
	last *model.SyncReport
}

// NewScheduler creates a Scheduler. An interval of zero disables periodic
// passes; manual triggers still work.
func NewScheduler(svc *SyncService, interval time.Duration) *Scheduler {
	return &Scheduler{
		sync:     svc,
		interval: interval,
		triggers: make(chan syncRequest),
	}
}

// Start serves triggers and, with a non-zero interval, runs a pass
// immediately and then on every tick. Start blocks until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		s.runPass(ctx, SyncOptions{})

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stopped")
			return
		case <-tick:
			s.runPass(ctx, SyncOptions{})
		case req := <-s.triggers:
			report, err := s.runPass(ctx, req.opts)
			req.done <- syncResponse{report: report, err: err}
		}
	}
}

// Trigger asks the running scheduler for a pass and waits for its report.
func (s *Scheduler) Trigger(ctx context.Context, opts SyncOptions) (*model.SyncReport, error) {
	done := make(chan syncResponse, 1)

	select {
	case s.triggers <- syncRequest{opts: opts, done: done}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-done:
		return resp.report, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Last returns the report of the most recent pass, or nil.
func (s *Scheduler) Last() *model.SyncReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Scheduler) runPass(ctx context.Context, opts SyncOptions) (*model.SyncReport, error) {
	report, err := s.sync.Run(ctx, opts)
	if err != nil {
		slog.Error("scheduled sync failed", "error", err)
	}
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	return report, err
}
