package driven

import (
	"context"
	"io"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

// AttachmentStore defines the driven port for the local download tree.
// Paths follow <root>/<issueKey>/<YYYY-MM-DD>/<filename> and nothing else.
type AttachmentStore interface {
	// Path returns the target path for an attachment. It is a pure function
	// of the root, issue key, attachment date and filename.
	Path(issueKey string, att model.Attachment) string

	// Exists reports whether a complete file is already at Path. A missing
	// root or directory is reported as false.
	Exists(issueKey string, att model.Attachment) bool

	// Write streams r into Path. The final file appears only after the whole
	// body was written; on failure no file is left at Path.
	Write(ctx context.Context, issueKey string, att model.Attachment, r io.Reader) (path string, n int64, err error)
}

// IncidentFolders defines the driven port for whole-issue folders under the
// download root.
type IncidentFolders interface {
	// ListIssueDirs returns the issue keys that have a folder, sorted.
	ListIssueDirs() ([]string, error)

	// FolderSize returns the total size of all files under the issue folder.
	FolderSize(issueKey string) (int64, error)

	// DeleteIssueDir removes the issue folder and everything below it.
	DeleteIssueDir(issueKey string) error
}
