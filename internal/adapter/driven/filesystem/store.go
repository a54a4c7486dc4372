// Package filesystem implements the local download tree: the path layout
// rule, presence checks, atomic writes and whole-issue folder management.
package filesystem

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.AttachmentStore = (*Store)(nil)
	_ driven.IncidentFolders = (*Store)(nil)
)

// Store is rooted at the user's download directory. The root does not need
// to exist until the first write.
type Store struct {
	root string
}

// NewStore creates a Store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// Root returns the download root.
func (s *Store) Root() string {
	return s.root
}

// Path returns <root>/<issueKey>/<YYYY-MM-DD>/<filename>.
func (s *Store) Path(issueKey string, att model.Attachment) string {
	name := SafeName(att.Filename)
	if name == "" {
		name = "attachment-" + SafeName(att.ID)
	}
	return filepath.Join(s.root, SafeName(issueKey), att.DatePartition(), name)
}

// Exists reports whether a regular, non-empty file is at the attachment's
// path. An empty file is what an interrupted write would look like, so it
// does not count.
func (s *Store) Exists(issueKey string, att model.Attachment) bool {
	info, err := os.Stat(s.Path(issueKey, att))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Write streams r to the attachment's path through a temporary file in the
// same directory and renames it into place only after the whole body was
// written. A known attachment size is enforced.
func (s *Store) Write(ctx context.Context, issueKey string, att model.Attachment, r io.Reader) (string, int64, error) {
	path := s.Path(issueKey, att)

	// MkdirAll treats an existing directory as success, so concurrent
	// writers into the same date folder do not race each other.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, 0, fmt.Errorf("create directory for %s: %w", path, err)
	}

	cr := &countingReader{ctx: ctx, r: r, expected: att.Size}
	if err := atomic.WriteFile(path, cr); err != nil {
		// atomic.WriteFile flattens the reader's error; keep the original cause.
		if cr.err != nil {
			return path, cr.n, fmt.Errorf("write %s: %w", path, cr.err)
		}
		return path, cr.n, fmt.Errorf("write %s: %w", path, err)
	}

	// Temp files are created 0600; downloads are ordinary user files.
	if err := os.Chmod(path, 0o644); err != nil {
		slog.Warn("chmod downloaded file failed", "path", path, "error", err)
	}

	return path, cr.n, nil
}

// countingReader counts bytes, aborts on context cancellation and rejects a
// body whose length differs from a known expected size.
type countingReader struct {
	ctx      context.Context
	r        io.Reader
	expected int64
	n        int64
	err      error
}

func (c *countingReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return 0, err
	}

	n, err := c.r.Read(p)
	c.n += int64(n)

	if c.expected > 0 && c.n > c.expected {
		c.err = fmt.Errorf("%w: received more than %d bytes", driven.ErrSizeMismatch, c.expected)
		return n, c.err
	}
	if err == io.EOF && c.expected > 0 && c.n != c.expected {
		c.err = fmt.Errorf("%w: received %d of %d bytes", driven.ErrSizeMismatch, c.n, c.expected)
		return n, c.err
	}
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, err
}

// SafeName reduces a remote-supplied name to a single path element that is
// valid on Windows, macOS and Linux. It is a pure function, so the layout
// stays deterministic.
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case strings.ContainsRune(`/\<>:"|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimRight(strings.TrimSpace(b.String()), ". ")
	if out == "" && name != "" {
		return "_"
	}
	return out
}
