package driven

import (
	"context"
	"io"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

// TrackerClient defines the driven port for read-only access to the issue
// tracker. Every method retries transient failures internally; an error
// returned here is final for that call.
type TrackerClient interface {
	// Myself returns the display name of the authenticated user.
	Myself(ctx context.Context) (string, error)

	// ListRelevantIssues runs the given query and returns every matching
	// issue across all result pages. Issues carry key, summary and status;
	// attachments are not populated. Either the full listing or an error is
	// returned, never a partial list.
	ListRelevantIssues(ctx context.Context, jql string) ([]model.Issue, error)

	// GetIssue returns a single issue including its attachment metadata.
	GetIssue(ctx context.Context, issueKey string) (*model.Issue, error)

	// ListAttachments returns the attachment metadata for an issue.
	ListAttachments(ctx context.Context, issueKey string) ([]model.Attachment, error)

	// OpenAttachment starts the download of an attachment body. The caller
	// must close the returned reader.
	OpenAttachment(ctx context.Context, att model.Attachment) (io.ReadCloser, error)
}
