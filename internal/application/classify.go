package application

import (
	"context"
	"errors"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// Classify maps an error chain to a FailureKind. Errors that match no known
// sentinel are treated as local I/O failures.
func Classify(err error) model.FailureKind {
	var se *model.SyncError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se) && se.Kind != "":
		return se.Kind
	case errors.Is(err, ErrKeyMissing):
		return model.FailureKeyMissing
	case errors.Is(err, ErrDecryptFailure):
		return model.FailureDecrypt
	case errors.Is(err, driven.ErrAuth), errors.Is(err, ErrNotLoggedIn):
		return model.FailureAuth
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.FailureCanceled
	case errors.Is(err, driven.ErrRateLimited):
		return model.FailureRateLimited
	case errors.Is(err, driven.ErrNetwork), errors.Is(err, driven.ErrSizeMismatch):
		return model.FailureNetwork
	case errors.Is(err, driven.ErrNotFound):
		return model.FailureNotFound
	default:
		return model.FailureIO
	}
}

// newSyncError wraps err with its classification. An error that already is
// a SyncError is returned as is.
func newSyncError(err error, issueKey, filename string) *model.SyncError {
	var se *model.SyncError
	if errors.As(err, &se) {
		return se
	}
	return &model.SyncError{Kind: Classify(err), IssueKey: issueKey, Filename: filename, Err: err}
}
