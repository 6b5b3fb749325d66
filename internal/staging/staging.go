package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
)

// stagingArea implements aupat.StagingArea over a directory. File and
// directory removal go through the FilesystemManager so tests can inject
// faults.
type stagingArea struct {
	root  string
	fsmgr aupat.FilesystemManager
	mu    sync.Mutex
}

var _ aupat.StagingArea = (*stagingArea)(nil)

// NewStagingArea opens the staging directory at dir, creating it if needed.
func NewStagingArea(dir string, fsmgr aupat.FilesystemManager) (aupat.StagingArea, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving staging dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging dir: %w", err)
	}
	return &stagingArea{root: filepath.Clean(root), fsmgr: fsmgr}, nil
}

func (s *stagingArea) Root() string { return s.root }

// Contains reports whether path lies strictly inside the root.
func (s *stagingArea) Contains(path string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *stagingArea) Remove(path string) error {
	if !s.Contains(path) {
		return fmt.Errorf("refusing to remove %s: outside staging dir %s", path, s.root)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fsmgr.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing staged file: %w", err)
	}
	return nil
}

// Prune walks from each directory towards the root, removing directories
// left empty by Remove. It stops at the first non-empty one.
func (s *stagingArea) Prune(dirs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, dir := range dirs {
		for d := filepath.Clean(dir); s.Contains(d); d = filepath.Dir(d) {
			removed, err := s.fsmgr.RemoveDirIfEmpty(d)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				errs = append(errs, err)
				break
			}
			if !removed {
				break
			}
		}
	}
	return errors.Join(errs...)
}
