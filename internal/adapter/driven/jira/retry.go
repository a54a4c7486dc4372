package jira

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxRetryAfter bounds how long a single Retry-After hint may stall a call.
const maxRetryAfter = 30 * time.Second

// retryAfterError carries the server's Retry-After hint with a retryable error.
type retryAfterError struct {
	err  error
	wait time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }

func (e *retryAfterError) Unwrap() error { return e.err }

// hintedBackOff stretches the next interval to honor a Retry-After hint.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

// retry runs op until it succeeds, returns a permanent error, the attempt
// budget is spent, or ctx is done. The last error is returned as-is.
func (c *Client) retry(ctx context.Context, target string, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialBackoff
	exp.MaxInterval = c.maxBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()

	hinted := &hintedBackOff{BackOff: backoff.WithMaxRetries(exp, c.maxRetries)}
	policy := backoff.WithContext(hinted, ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		var ra *retryAfterError
		if errors.As(err, &ra) {
			hinted.hint = ra.wait
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		slog.Warn("jira request failed, retrying",
			"url", target,
			"attempt", attempt,
			"wait", wait.Round(time.Millisecond),
			"error", err,
		)
	})
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. Missing or malformed values yield zero.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}

	var wait time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		wait = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		wait = time.Until(at)
	}

	if wait < 0 {
		return 0
	}
	if wait > maxRetryAfter {
		return maxRetryAfter
	}
	return wait
}
