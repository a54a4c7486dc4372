package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/jiradl/internal/application"
	"github.com/ericfisherdev/jiradl/internal/config"
	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

type memKeyStore struct {
	key []byte
}

func (m *memKeyStore) Load() ([]byte, error) {
	if m.key == nil {
		return nil, driven.ErrKeyNotFound
	}
	return m.key, nil
}

func (m *memKeyStore) Save(key []byte) error {
	m.key = key
	return nil
}

func (m *memKeyStore) Delete() error {
	m.key = nil
	return nil
}

// tokenClient records the token it was built with.
type tokenClient struct {
	token string
}

func (c *tokenClient) Myself(context.Context) (string, error) { return "Test User", nil }

func (c *tokenClient) ListRelevantIssues(context.Context, string) ([]model.Issue, error) {
	return nil, nil
}

func (c *tokenClient) GetIssue(context.Context, string) (*model.Issue, error) {
	return nil, driven.ErrNotFound
}

func (c *tokenClient) ListAttachments(context.Context, string) ([]model.Attachment, error) {
	return nil, nil
}

func (c *tokenClient) OpenAttachment(context.Context, model.Attachment) (io.ReadCloser, error) {
	return nil, driven.ErrNotFound
}

func saveLogin(t *testing.T, path string, vault *application.CredentialVault, token string) {
	t.Helper()

	cfg, err := config.Load(path)
	require.NoError(t, err)
	enc, err := vault.Encrypt(token)
	require.NoError(t, err)
	cfg.SetCredentials("https://acme.atlassian.net", "me@example.com", enc)
	require.NoError(t, cfg.Save())
}

func TestTrackerFactory_PicksUpNewLoginAfterReset(t *testing.T) {
	t.Setenv("JIRADL_DOWNLOAD_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")
	vault := application.NewCredentialVault(&memKeyStore{})
	builds := 0
	factory := newTrackerFactory(path, vault, func(_, _, token string) (driven.TrackerClient, error) {
		builds++
		return &tokenClient{token: token}, nil
	})
	provider := application.NewTrackerProvider(factory)

	saveLogin(t, path, vault, "old-token")
	client, err := provider.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old-token", client.(*tokenClient).token)

	saveLogin(t, path, vault, "new-token")
	client, err = provider.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old-token", client.(*tokenClient).token, "cached until reset")

	provider.Reset()
	client, err = provider.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-token", client.(*tokenClient).token)
	assert.Equal(t, 2, builds)
}

func TestTrackerFactory_NotLoggedIn(t *testing.T) {
	t.Setenv("JIRADL_DOWNLOAD_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")
	factory := newTrackerFactory(path, application.NewCredentialVault(&memKeyStore{}), func(_, _, token string) (driven.TrackerClient, error) {
		t.Fatal("client must not be built without credentials")
		return nil, nil
	})

	_, err := factory(context.Background())

	assert.ErrorIs(t, err, application.ErrNotLoggedIn)
}
