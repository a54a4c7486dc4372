package model

import (
	"strings"
	"time"
)

// Issue is a snapshot of a tracker issue taken during one sync pass.
type Issue struct {
	Key         string
	Summary     string
	Status      IssueStatus
	Attachments []Attachment
}

// Attachment is a file attached to an issue.
type Attachment struct {
	ID         string
	IssueKey   string
	Filename   string
	Size       int64 // 0 when the tracker did not report a size.
	MimeType   string
	Created    time.Time
	ContentURL string
}

// DatePartition returns the YYYY-MM-DD directory name derived from the
// attachment's own creation timestamp in UTC.
func (a Attachment) DatePartition() string {
	return a.Created.UTC().Format("2006-01-02")
}

// ParseIssueKey extracts an issue key from either a bare key ("abc-123") or a
// browse URL ("https://acme.atlassian.net/browse/ABC-123?focus=1").
// The returned key is upper-cased. ok is false when no key can be found.
func ParseIssueKey(input string) (key string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "http") {
		if IsValidIssueKey(input) {
			return strings.ToUpper(input), true
		}
		return "", false
	}

	parts := strings.Split(input, "/")
	for i, part := range parts {
		if (part == "browse" || part == "issues") && i+1 < len(parts) {
			candidate := stripQuery(parts[i+1])
			if IsValidIssueKey(candidate) {
				return strings.ToUpper(candidate), true
			}
		}
	}

	last := stripQuery(parts[len(parts)-1])
	if IsValidIssueKey(last) {
		return strings.ToUpper(last), true
	}
	return "", false
}

// IsValidIssueKey reports whether s has the shape PROJECT-DIGITS, where the
// project key starts with a letter and continues with letters, digits or
// underscores.
func IsValidIssueKey(s string) bool {
	prefix, suffix, found := strings.Cut(s, "-")
	if !found || prefix == "" || suffix == "" {
		return false
	}
	for i, r := range prefix {
		letter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 && !letter {
			return false
		}
		if !letter && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}
