package filesystem_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/jiradl/internal/adapter/driven/filesystem"
	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

func testAttachment(name string, size int64) model.Attachment {
	return model.Attachment{
		ID:       "10001",
		IssueKey: "ABC-123",
		Filename: name,
		Size:     size,
		Created:  time.Date(2024, 3, 9, 22, 15, 0, 0, time.UTC),
	}
}

// failingReader yields some bytes and then a transport error, simulating a
// connection dropped mid-transfer.
type failingReader struct {
	data []byte
	sent bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, f.data), nil
	}
	return 0, errors.New("connection reset by peer")
}

func TestPath_Layout(t *testing.T) {
	store := filesystem.NewStore("/data/jira")
	att := testAttachment("report.pdf", 10)

	got := store.Path("ABC-123", att)

	assert.Equal(t, filepath.Join("/data/jira", "ABC-123", "2024-03-09", "report.pdf"), got)
}

func TestPath_IsDeterministic(t *testing.T) {
	att := testAttachment("report.pdf", 10)

	first := filesystem.NewStore("/data/jira").Path("ABC-123", att)
	second := filesystem.NewStore("/data/jira/").Path("ABC-123", att)

	assert.Equal(t, first, second)
	assert.Equal(t, first, filesystem.NewStore("/data/jira").Path("ABC-123", att))
}

func TestPath_UsesUTCDateOfAttachment(t *testing.T) {
	store := filesystem.NewStore("/r")
	att := testAttachment("a.txt", 1)
	att.Created = time.Date(2024, 3, 10, 1, 0, 0, 0, time.FixedZone("CET", 3600))

	assert.Equal(t, filepath.Join("/r", "ABC-123", "2024-03-10", "a.txt"), store.Path("ABC-123", att))

	att.Created = time.Date(2024, 3, 10, 0, 30, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, filepath.Join("/r", "ABC-123", "2024-03-09", "a.txt"), store.Path("ABC-123", att))
}

func TestPath_SanitizesFilename(t *testing.T) {
	store := filesystem.NewStore("/r")

	assert.Equal(t, filepath.Join("/r", "ABC-123", "2024-03-09", ".._.._etc_passwd"), store.Path("ABC-123", testAttachment("../../etc/passwd", 1)))
	assert.Equal(t, filepath.Join("/r", "ABC-123", "2024-03-09", "_"), store.Path("ABC-123", testAttachment("..", 1)))
	assert.Equal(t, filepath.Join("/r", "ABC-123", "2024-03-09", "attachment-10001"), store.Path("ABC-123", testAttachment("", 1)))
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":        "report.pdf",
		`C:\tmp\x.log`:      "C__tmp_x.log",
		"what?.txt":         "what_.txt",
		"trailing dots...":  "trailing dots",
		"tab\there":         "tabhere",
		"  spaced name.txt": "spaced name.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, filesystem.SafeName(in), "input %q", in)
	}
}

func TestExists_MissingRoot(t *testing.T) {
	store := filesystem.NewStore(filepath.Join(t.TempDir(), "does", "not", "exist"))

	assert.False(t, store.Exists("ABC-123", testAttachment("report.pdf", 10)))
}

func TestExists_EmptyFileIsNotPresent(t *testing.T) {
	store := filesystem.NewStore(t.TempDir())
	att := testAttachment("report.pdf", 10)
	path := store.Path("ABC-123", att)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	assert.False(t, store.Exists("ABC-123", att))
}

func TestExists_DirectoryIsNotPresent(t *testing.T) {
	store := filesystem.NewStore(t.TempDir())
	att := testAttachment("report.pdf", 10)
	require.NoError(t, os.MkdirAll(store.Path("ABC-123", att), 0o755))

	assert.False(t, store.Exists("ABC-123", att))
}

func TestWrite_CreatesLayoutAndFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "downloads")
	store := filesystem.NewStore(root)
	att := testAttachment("report.pdf", 5)

	path, n, err := store.Write(context.Background(), "ABC-123", att, strings.NewReader("hello"))

	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, store.Path("ABC-123", att), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.True(t, store.Exists("ABC-123", att))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWrite_UnknownSizeAcceptsAnyLength(t *testing.T) {
	store := filesystem.NewStore(t.TempDir())
	att := testAttachment("notes.txt", 0)

	_, n, err := store.Write(context.Background(), "ABC-123", att, strings.NewReader("twelve bytes"))

	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestWrite_InterruptedTransferLeavesNoFile(t *testing.T) {
	store := filesystem.NewStore(t.TempDir())
	att := testAttachment("big.bin", 1000)

	_, _, err := store.Write(context.Background(), "ABC-123", att, &failingReader{data: []byte("partial")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	_, statErr := os.Stat(store.Path("ABC-123", att))
	assert.True(t, os.IsNotExist(statErr), "no file may appear at the final path")
	assert.False(t, store.Exists("ABC-123", att))

	entries, err := os.ReadDir(filepath.Dir(store.Path("ABC-123", att)))
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file must be cleaned up")
}

func TestWrite_TruncatedBodyIsRejected(t *testing.T) {
	store := filesystem.NewStore(t.TempDir())
	att := testAttachment("big.bin", 100)

	_, n, err := store.Write(context.Background(), "ABC-123", att, strings.NewReader("only ten b"))

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrSizeMismatch)
	assert.Equal(t, int64(10), n)
	assert.False(t, store.Exists("ABC-123", att))
}

func TestWrite_CanceledContext(t *testing.T) {
	store := filesystem.NewStore(t.TempDir())
	att := testAttachment("a.txt", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Write(ctx, "ABC-123", att, strings.NewReader("data"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, store.Exists("ABC-123", att))
}

func TestWrite_ReplacesExistingFile(t *testing.T) {
	store := filesystem.NewStore(t.TempDir())
	att := testAttachment("a.txt", 0)

	_, _, err := store.Write(context.Background(), "ABC-123", att, strings.NewReader("old"))
	require.NoError(t, err)
	path, _, err := store.Write(context.Background(), "ABC-123", att, strings.NewReader("new content"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))
}

func TestWrite_ConcurrentWritersShareDirectories(t *testing.T) {
	store := filesystem.NewStore(t.TempDir())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			att := testAttachment(string(rune('a'+i))+".txt", 0)
			_, _, err := store.Write(context.Background(), "ABC-123", att, strings.NewReader("x"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestIssueDirs_ListSizeDelete(t *testing.T) {
	root := t.TempDir()
	store := filesystem.NewStore(root)

	_, _, err := store.Write(context.Background(), "ABC-1", testAttachment("a.txt", 0), strings.NewReader("12345"))
	require.NoError(t, err)
	_, _, err = store.Write(context.Background(), "ABC-1", testAttachment("b.txt", 0), strings.NewReader("123"))
	require.NoError(t, err)
	_, _, err = store.Write(context.Background(), "XYZ-9", testAttachment("c.txt", 0), strings.NewReader("1"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-an-issue"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.txt"), []byte("x"), 0o644))

	keys, err := store.ListIssueDirs()
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-1", "XYZ-9"}, keys)

	size, err := store.FolderSize("ABC-1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)

	require.NoError(t, store.DeleteIssueDir("ABC-1"))
	keys, err = store.ListIssueDirs()
	require.NoError(t, err)
	assert.Equal(t, []string{"XYZ-9"}, keys)

	size, err = store.FolderSize("ABC-1")
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestIssueDirs_MissingRoot(t *testing.T) {
	store := filesystem.NewStore(filepath.Join(t.TempDir(), "missing"))

	keys, err := store.ListIssueDirs()

	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDeleteIssueDir_RejectsInvalidKey(t *testing.T) {
	store := filesystem.NewStore(t.TempDir())

	assert.Error(t, store.DeleteIssueDir(".."))
	assert.Error(t, store.DeleteIssueDir("ABC-1/../.."))
}

var _ io.Reader = (*failingReader)(nil)
