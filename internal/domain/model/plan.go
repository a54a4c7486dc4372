package model

// SyncPlanEntry pairs an attachment with the planner's decision.
type SyncPlanEntry struct {
	IssueKey   string
	Attachment Attachment
	Action     PlanAction
	Path       string // Target path under the download root.

	// ConflictsWith holds the ID of an earlier attachment in the same pass
	// that resolves to the same Path. Such entries are never written.
	ConflictsWith string
}

// IssuePlan carries the per-issue part of a plan.
type IssuePlan struct {
	Key          string
	Summary      string
	Status       IssueStatus
	NeedsCleanup bool
	Attachments  int
	Error        *SyncError // Attachment listing failure; the issue contributes no entries.
}

// Plan is the reconciliation of remote attachments against the local tree.
// It is computed fresh every pass.
type Plan struct {
	Issues  []IssuePlan
	Entries []SyncPlanEntry
}

// Count returns the number of entries with the given action.
func (p Plan) Count(action PlanAction) int {
	n := 0
	for _, e := range p.Entries {
		if e.Action == action && e.ConflictsWith == "" {
			n++
		}
	}
	return n
}
