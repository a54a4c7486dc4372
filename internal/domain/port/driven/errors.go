package driven

import "errors"

// Sentinel errors returned by driven adapters. Adapters wrap them with
// context; callers match with errors.Is.
var (
	// ErrAuth means the tracker rejected the credentials (401/403) or answered
	// with a login page instead of JSON.
	ErrAuth = errors.New("authentication failed")

	// ErrRateLimited means the tracker kept answering 429 after all retries.
	ErrRateLimited = errors.New("rate limited")

	// ErrNetwork means the request could not complete after all retries
	// (transport error or 5xx).
	ErrNetwork = errors.New("network error")

	// ErrNotFound means the requested issue or attachment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrKeyNotFound is returned by KeyStore.Load when no key has been saved.
	ErrKeyNotFound = errors.New("encryption key not found")

	// ErrSizeMismatch means a transfer ended with fewer or more bytes than
	// the tracker reported for the attachment.
	ErrSizeMismatch = errors.New("size mismatch")
)
