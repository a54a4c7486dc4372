package application_test

import (
	"time"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

func modelToken(ciphertext, nonce []byte) model.EncryptedToken {
	return model.EncryptedToken{Ciphertext: ciphertext, Nonce: nonce}
}

var testDay = time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)

func att(issueKey, id, filename string) model.Attachment {
	return model.Attachment{
		ID:       id,
		IssueKey: issueKey,
		Filename: filename,
		Created:  testDay,
	}
}

func issue(key string, status model.IssueStatus, atts ...model.Attachment) model.Issue {
	return model.Issue{Key: key, Summary: "Summary of " + key, Status: status, Attachments: atts}
}

func downloadEntry(store *memStore, a model.Attachment) model.SyncPlanEntry {
	return model.SyncPlanEntry{
		IssueKey:   a.IssueKey,
		Attachment: a,
		Action:     model.ActionDownload,
		Path:       store.Path(a.IssueKey, a),
	}
}
