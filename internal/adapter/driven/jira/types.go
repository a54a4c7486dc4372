package jira

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

// issueJSON is the subset of the Jira issue resource we request via
// fields=summary,status,attachment.
type issueJSON struct {
	Key    string     `json:"key"`
	Fields fieldsJSON `json:"fields"`
}

type fieldsJSON struct {
	Summary    string           `json:"summary"`
	Status     statusJSON       `json:"status"`
	Attachment []attachmentJSON `json:"attachment"`
}

type statusJSON struct {
	Name string `json:"name"`
}

type attachmentJSON struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Size     int64    `json:"size"`
	Created  jiraTime `json:"created"`
	Content  string   `json:"content"`
	MimeType string   `json:"mimeType"`
}

// searchJQLResponse is the body of GET /rest/api/3/search/jql (token paging).
type searchJQLResponse struct {
	Issues        []issueJSON `json:"issues"`
	NextPageToken string      `json:"nextPageToken"`
	IsLast        bool        `json:"isLast"`
}

// searchResponse is the body of GET /rest/api/2/search (offset paging).
type searchResponse struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []issueJSON `json:"issues"`
}

type myselfResponse struct {
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// jiraTimeLayouts lists the timestamp formats Jira is known to send. Jira
// omits the colon in the zone offset ("2024-01-15T10:30:00.000+0000").
var jiraTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
}

// jiraTime decodes Jira timestamps. A missing or empty value decodes to the
// zero time.
type jiraTime struct {
	time.Time
}

func (t *jiraTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("jira timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range jiraTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse jira timestamp %q", s)
}

// mapIssue converts a Jira issue resource to a domain model Issue.
func mapIssue(in issueJSON) model.Issue {
	attachments := make([]model.Attachment, 0, len(in.Fields.Attachment))
	for _, a := range in.Fields.Attachment {
		attachments = append(attachments, mapAttachment(in.Key, a))
	}

	return model.Issue{
		Key:         in.Key,
		Summary:     in.Fields.Summary,
		Status:      model.IssueStatus(in.Fields.Status.Name),
		Attachments: attachments,
	}
}

// mapAttachment converts a Jira attachment resource to a domain model
// Attachment. A missing creation time falls back to the Unix epoch so the
// date partition stays stable across passes.
func mapAttachment(issueKey string, a attachmentJSON) model.Attachment {
	created := a.Created.Time
	if created.IsZero() {
		created = time.Unix(0, 0).UTC()
	}

	return model.Attachment{
		ID:         a.ID,
		IssueKey:   issueKey,
		Filename:   a.Filename,
		Size:       a.Size,
		MimeType:   a.MimeType,
		Created:    created,
		ContentURL: a.Content,
	}
}
