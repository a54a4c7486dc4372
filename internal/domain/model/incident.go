package model

import "time"

// Incident is an issue that has (or had) a folder under the download root.
// Its lifecycle fields come from the ledger; size and presence come from disk.
type Incident struct {
	Key               string
	Summary           string
	Status            IssueStatus
	LastChecked       time.Time
	MarkedForDeletion bool
	FolderSize        int64
	OnDisk            bool
}

// NeedsCleanup reports whether the incident's issue is closed.
func (i Incident) NeedsCleanup() bool {
	return i.Status.IsClosed()
}
