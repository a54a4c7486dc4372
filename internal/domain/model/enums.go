package model

import "strings"

// IssueStatus is the tracker's workflow status name for an issue. The set is
// open-ended; trackers let administrators define their own statuses.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "Open"
	IssueStatusInProgress IssueStatus = "In Progress"
	IssueStatusResolved   IssueStatus = "Resolved"
	IssueStatusClosed     IssueStatus = "Closed"
	IssueStatusDone       IssueStatus = "Done"
)

// IsClosed reports whether the status belongs to the closed/resolved set.
// Custom workflow names such as "Closed - Won't Fix" or "Resolved (QA)" match
// on their prefix.
func (s IssueStatus) IsClosed() bool {
	v := strings.ToLower(strings.TrimSpace(string(s)))
	switch v {
	case "done", "closed", "resolved":
		return true
	}
	return strings.Contains(v, "clos") || strings.Contains(v, "resolv")
}

// PlanAction is the planner's decision for a single attachment.
type PlanAction string

const (
	ActionDownload       PlanAction = "download"
	ActionAlreadyPresent PlanAction = "already_present"
)

// FetchOutcome is the executor's result for a single plan entry.
type FetchOutcome string

const (
	OutcomeDownloaded     FetchOutcome = "downloaded"
	OutcomeAlreadyPresent FetchOutcome = "already_present"
	OutcomeFailed         FetchOutcome = "failed"
)

// FailureKind classifies why an operation failed.
type FailureKind string

const (
	FailureAuth        FailureKind = "auth"
	FailureNetwork     FailureKind = "network"
	FailureRateLimited FailureKind = "rate_limited"
	FailureIO          FailureKind = "io"
	FailureDecrypt     FailureKind = "decrypt"
	FailureKeyMissing  FailureKind = "key_missing"
	FailureConflict    FailureKind = "conflict"
	FailureCanceled    FailureKind = "canceled"
	FailureNotFound    FailureKind = "not_found"
)

// IsPassFatal reports whether a failure of this kind ends the whole sync pass.
func (k FailureKind) IsPassFatal() bool {
	switch k {
	case FailureAuth, FailureDecrypt, FailureKeyMissing:
		return true
	default:
		return false
	}
}
