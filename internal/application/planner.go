package application

import (
	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// Planner reconciles remote attachment metadata against the local tree.
// It holds no state between calls.
type Planner struct {
	store driven.AttachmentStore
}

// NewPlanner creates a Planner that checks presence through store.
func NewPlanner(store driven.AttachmentStore) *Planner {
	return &Planner{store: store}
}

// Plan decides, for every attachment of every issue, whether it has to be
// downloaded. The result follows input order. When two attachments map to the
// same local path, the first keeps its action and later ones are marked as
// conflicting with it.
func (p *Planner) Plan(issues []model.Issue) model.Plan {
	plan := model.Plan{
		Issues:  make([]model.IssuePlan, 0, len(issues)),
		Entries: []model.SyncPlanEntry{},
	}
	claimed := make(map[string]string)

	for _, issue := range issues {
		plan.Issues = append(plan.Issues, model.IssuePlan{
			Key:          issue.Key,
			Summary:      issue.Summary,
			Status:       issue.Status,
			NeedsCleanup: issue.Status.IsClosed(),
			Attachments:  len(issue.Attachments),
		})

		for _, att := range issue.Attachments {
			entry := model.SyncPlanEntry{
				IssueKey:   issue.Key,
				Attachment: att,
				Path:       p.store.Path(issue.Key, att),
				Action:     model.ActionDownload,
			}

			if first, ok := claimed[entry.Path]; ok {
				entry.ConflictsWith = first
			} else {
				claimed[entry.Path] = att.ID
			}

			if p.store.Exists(issue.Key, att) {
				entry.Action = model.ActionAlreadyPresent
			}
			plan.Entries = append(plan.Entries, entry)
		}
	}

	return plan
}
