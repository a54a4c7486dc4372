package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

// ListIssueDirs returns the keys of all issue folders under the root,
// sorted. A missing root yields an empty list.
func (s *Store) ListIssueDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read download root %s: %w", s.root, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && model.IsValidIssueKey(e.Name()) {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// FolderSize returns the total size of regular files under the issue folder.
// A missing folder has size zero.
func (s *Store) FolderSize(issueKey string) (int64, error) {
	dir, err := s.issueDir(issueKey)
	if err != nil {
		return 0, err
	}

	var total int64
	err = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("size of %s: %w", dir, err)
	}
	return total, nil
}

// DeleteIssueDir removes an issue folder. A missing folder is not an error.
func (s *Store) DeleteIssueDir(issueKey string) error {
	dir, err := s.issueDir(issueKey)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete %s: %w", dir, err)
	}
	return nil
}

// issueDir resolves an issue folder, refusing anything that is not an issue
// key so a crafted key can never point outside the root.
func (s *Store) issueDir(issueKey string) (string, error) {
	if !model.IsValidIssueKey(issueKey) {
		return "", fmt.Errorf("invalid issue key %q", issueKey)
	}
	return filepath.Join(s.root, issueKey), nil
}
