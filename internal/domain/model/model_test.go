package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

func TestParseIssueKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"ABC-123", "ABC-123", true},
		{"  abc-123 ", "ABC-123", true},
		{"AB2_X-7", "AB2_X-7", true},
		{"https://acme.atlassian.net/browse/ABC-123", "ABC-123", true},
		{"https://acme.atlassian.net/browse/abc-9?focusedCommentId=1", "ABC-9", true},
		{"https://jira.example.com/projects/ABC/issues/ABC-4#comment", "ABC-4", true},
		{"https://acme.atlassian.net/jira/software/c/projects/ABC/boards/1?selectedIssue=x", "", false},
		{"ABC", "", false},
		{"ABC-", "", false},
		{"-12", "", false},
		{"1AB-12", "", false},
		{"ABC-12a", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := model.ParseIssueKey(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestIssueStatus_IsClosed(t *testing.T) {
	closed := []model.IssueStatus{"Done", "closed", "RESOLVED", "Closed - Won't Fix", "Resolved (QA)"}
	for _, s := range closed {
		assert.True(t, s.IsClosed(), "status %q", s)
	}

	open := []model.IssueStatus{"Open", "In Progress", "To Do", "Reopened", ""}
	for _, s := range open {
		assert.False(t, s.IsClosed(), "status %q", s)
	}
}

func TestAttachment_DatePartitionUsesUTC(t *testing.T) {
	att := model.Attachment{Created: time.Date(2024, 1, 16, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))}

	assert.Equal(t, "2024-01-17", att.DatePartition())
}

func TestFetchResult_Label(t *testing.T) {
	assert.Equal(t, "Done ✓", model.FetchResult{Outcome: model.OutcomeDownloaded}.Label())
	assert.Equal(t, "On disk ✓", model.FetchResult{Outcome: model.OutcomeAlreadyPresent}.Label())
	assert.Equal(t, "Error: connection reset", model.FetchResult{
		Outcome: model.OutcomeFailed,
		Failure: &model.SyncError{Kind: model.FailureNetwork, Err: errors.New("connection reset")},
	}.Label())
	assert.Equal(t, "Error", model.FetchResult{Outcome: model.OutcomeFailed}.Label())
}

func TestSyncError(t *testing.T) {
	cause := errors.New("disk full")
	err := &model.SyncError{Kind: model.FailureIO, IssueKey: "ABC-1", Filename: "a.txt", Err: cause}

	assert.Equal(t, "ABC-1 a.txt: io: disk full", err.Error())
	assert.Equal(t, "disk full", err.Message())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "auth", (&model.SyncError{Kind: model.FailureAuth}).Error())
}

func TestFailureKind_IsPassFatal(t *testing.T) {
	for _, k := range []model.FailureKind{model.FailureAuth, model.FailureDecrypt, model.FailureKeyMissing} {
		assert.True(t, k.IsPassFatal(), "kind %q", k)
	}
	for _, k := range []model.FailureKind{model.FailureNetwork, model.FailureRateLimited, model.FailureIO, model.FailureConflict, model.FailureCanceled, model.FailureNotFound} {
		assert.False(t, k.IsPassFatal(), "kind %q", k)
	}
}

func TestSyncReport_Counts(t *testing.T) {
	report := model.SyncReport{Results: []model.FetchResult{
		{Outcome: model.OutcomeDownloaded, Bytes: 10},
		{Outcome: model.OutcomeDownloaded, Bytes: 5},
		{Outcome: model.OutcomeAlreadyPresent},
		{Outcome: model.OutcomeFailed},
	}}

	assert.Equal(t, 2, report.Downloaded())
	assert.Equal(t, 1, report.Present())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, int64(15), report.Bytes())
}

func TestPlan_CountSkipsConflicts(t *testing.T) {
	plan := model.Plan{Entries: []model.SyncPlanEntry{
		{Action: model.ActionDownload},
		{Action: model.ActionDownload, ConflictsWith: "1"},
		{Action: model.ActionAlreadyPresent},
	}}

	assert.Equal(t, 1, plan.Count(model.ActionDownload))
	assert.Equal(t, 1, plan.Count(model.ActionAlreadyPresent))
}

func TestIncident_NeedsCleanup(t *testing.T) {
	assert.True(t, model.Incident{Status: model.IssueStatusDone}.NeedsCleanup())
	assert.False(t, model.Incident{Status: model.IssueStatusInProgress}.NeedsCleanup())
}
