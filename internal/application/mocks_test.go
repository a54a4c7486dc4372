package application_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// --- Tracker ---

type mockTracker struct {
	listIssues  func(ctx context.Context, jql string) ([]model.Issue, error)
	getIssue    func(ctx context.Context, key string) (*model.Issue, error)
	listAtts    func(ctx context.Context, key string) ([]model.Attachment, error)
	open        func(ctx context.Context, att model.Attachment) (io.ReadCloser, error)
	openCalls   atomic.Int32
	getCalls    atomic.Int32
	listedCalls atomic.Int32
}

func (m *mockTracker) Myself(_ context.Context) (string, error) {
	return "Test User", nil
}

func (m *mockTracker) ListRelevantIssues(ctx context.Context, jql string) ([]model.Issue, error) {
	if m.listIssues == nil {
		return nil, nil
	}
	return m.listIssues(ctx, jql)
}

func (m *mockTracker) GetIssue(ctx context.Context, key string) (*model.Issue, error) {
	m.getCalls.Add(1)
	if m.getIssue == nil {
		return nil, driven.ErrNotFound
	}
	return m.getIssue(ctx, key)
}

func (m *mockTracker) ListAttachments(ctx context.Context, key string) ([]model.Attachment, error) {
	m.listedCalls.Add(1)
	if m.listAtts == nil {
		return nil, nil
	}
	return m.listAtts(ctx, key)
}

func (m *mockTracker) OpenAttachment(ctx context.Context, att model.Attachment) (io.ReadCloser, error) {
	m.openCalls.Add(1)
	if m.open == nil {
		return io.NopCloser(strings.NewReader("content of " + att.Filename)), nil
	}
	return m.open(ctx, att)
}

// --- Attachment store ---

// memStore is an in-memory AttachmentStore and IncidentFolders keyed by path.
type memStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	writes  int
	failFor map[string]error
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}, failFor: map[string]error{}}
}

func (s *memStore) Path(issueKey string, att model.Attachment) string {
	return path.Join("/root", issueKey, att.DatePartition(), att.Filename)
}

func (s *memStore) Exists(issueKey string, att model.Attachment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files[s.Path(issueKey, att)]) > 0
}

func (s *memStore) Write(ctx context.Context, issueKey string, att model.Attachment, r io.Reader) (string, int64, error) {
	p := s.Path(issueKey, att)

	s.mu.Lock()
	failure := s.failFor[att.Filename]
	s.mu.Unlock()
	if failure != nil {
		return p, 0, failure
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return p, n, err
	}
	if err := ctx.Err(); err != nil {
		return p, n, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = buf.Bytes()
	s.writes++
	return p, n, nil
}

func (s *memStore) put(issueKey string, att model.Attachment, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[s.Path(issueKey, att)] = []byte(content)
}

func (s *memStore) ListIssueDirs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for p := range s.files {
		seen[strings.Split(strings.TrimPrefix(p, "/root/"), "/")[0]] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memStore) FolderSize(issueKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for p, data := range s.files {
		if strings.HasPrefix(p, "/root/"+issueKey+"/") {
			total += int64(len(data))
		}
	}
	return total, nil
}

func (s *memStore) DeleteIssueDir(issueKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.files {
		if strings.HasPrefix(p, "/root/"+issueKey+"/") {
			delete(s.files, p)
		}
	}
	return nil
}

// --- Key store ---

type mockKeyStore struct {
	key     []byte
	saved   int
	loadErr error
	saveErr error
}

func (m *mockKeyStore) Load() ([]byte, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.key == nil {
		return nil, driven.ErrKeyNotFound
	}
	return append([]byte(nil), m.key...), nil
}

func (m *mockKeyStore) Save(key []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.key = append([]byte(nil), key...)
	m.saved++
	return nil
}

func (m *mockKeyStore) Delete() error {
	m.key = nil
	return nil
}

// --- Ledger ---

type mockRunStore struct {
	mu    sync.Mutex
	runs  []model.SyncRun
	files map[string][]model.SyncRunFile
	err   error
}

func (m *mockRunStore) RecordRun(_ context.Context, run model.SyncRun, files []model.SyncRunFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.files == nil {
		m.files = map[string][]model.SyncRunFile{}
	}
	m.runs = append(m.runs, run)
	m.files[run.ID] = files
	return nil
}

func (m *mockRunStore) ListRuns(_ context.Context, _ int) ([]model.SyncRun, error) {
	return m.runs, nil
}

func (m *mockRunStore) GetRun(_ context.Context, id string) (*model.SyncRun, []model.SyncRunFile, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return &r, m.files[id], nil
		}
	}
	return nil, nil, nil
}

type mockIncidentStore struct {
	mu      sync.Mutex
	records map[string]model.Incident
}

func newMockIncidentStore() *mockIncidentStore {
	return &mockIncidentStore{records: map[string]model.Incident{}}
}

func (m *mockIncidentStore) UpsertStatus(_ context.Context, inc model.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc.MarkedForDeletion = m.records[inc.Key].MarkedForDeletion
	m.records[inc.Key] = inc
	return nil
}

func (m *mockIncidentStore) Get(_ context.Context, key string) (*model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &inc, nil
}

func (m *mockIncidentStore) ListAll(_ context.Context) ([]model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Incident, 0, len(m.records))
	for _, inc := range m.records {
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *mockIncidentStore) SetMarked(_ context.Context, key string, marked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc := m.records[key]
	inc.Key = key
	inc.MarkedForDeletion = marked
	m.records[key] = inc
	return nil
}

func (m *mockIncidentStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// --- Helpers ---

// errReader fails after yielding a prefix, like a dropped connection.
type errReader struct {
	prefix string
	done   bool
}

func (r *errReader) Read(p []byte) (int, error) {
	if !r.done {
		r.done = true
		return copy(p, r.prefix), nil
	}
	return 0, errors.New("connection reset by peer")
}

func (r *errReader) Close() error { return nil }

var (
	_ driven.TrackerClient   = (*mockTracker)(nil)
	_ driven.AttachmentStore = (*memStore)(nil)
	_ driven.IncidentFolders = (*memStore)(nil)
	_ driven.KeyStore        = (*mockKeyStore)(nil)
	_ driven.RunStore        = (*mockRunStore)(nil)
	_ driven.IncidentStore   = (*mockIncidentStore)(nil)
)
