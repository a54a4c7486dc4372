package model

import (
	"fmt"
	"strings"
)

// SyncError is a failure with enough context to be shown as a line item.
type SyncError struct {
	Kind     FailureKind
	IssueKey string
	Filename string
	Err      error
}

// Error renders "ABC-1 report.pdf: network: <cause>", omitting empty parts.
func (e *SyncError) Error() string {
	var b strings.Builder
	if e.IssueKey != "" {
		b.WriteString(e.IssueKey)
	}
	if e.Filename != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.Filename)
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Message returns the cause without the issue and file prefix.
func (e *SyncError) Message() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}
