package model

import "time"

// FetchResult is the executor's outcome for one plan entry.
type FetchResult struct {
	Entry   SyncPlanEntry
	Outcome FetchOutcome
	Bytes   int64
	Path    string
	Failure *SyncError
}

// Label returns the short status text shown next to a file.
func (r FetchResult) Label() string {
	switch r.Outcome {
	case OutcomeDownloaded:
		return "Done ✓"
	case OutcomeAlreadyPresent:
		return "On disk ✓"
	default:
		if r.Failure != nil {
			return "Error: " + r.Failure.Message()
		}
		return "Error"
	}
}

// SyncReport summarizes one sync pass for the caller.
type SyncReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Issues     []IssuePlan
	Results    []FetchResult

	// Pending holds the entries a dry run would have downloaded.
	Pending []SyncPlanEntry

	// Fatal is set when the pass stopped early (auth or credential failure).
	Fatal *SyncError
}

// Downloaded returns the number of files transferred in this pass.
func (r SyncReport) Downloaded() int { return r.count(OutcomeDownloaded) }

// Present returns the number of files already on disk.
func (r SyncReport) Present() int { return r.count(OutcomeAlreadyPresent) }

// Failed returns the number of files that could not be fetched.
func (r SyncReport) Failed() int { return r.count(OutcomeFailed) }

// Bytes returns the total bytes transferred.
func (r SyncReport) Bytes() int64 {
	var total int64
	for _, res := range r.Results {
		total += res.Bytes
	}
	return total
}

func (r SyncReport) count(outcome FetchOutcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// SyncRun is the persisted summary of a sync pass.
type SyncRun struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Issues     int
	Downloaded int
	Present    int
	Failed     int
	Bytes      int64
	FatalError string
}

// SyncRunFile is the persisted outcome of one file within a run.
type SyncRunFile struct {
	RunID        string
	IssueKey     string
	AttachmentID string
	Filename     string
	Path         string
	Outcome      FetchOutcome
	Bytes        int64
	FailureKind  FailureKind
	Message      string
}
