package aupat

import (
	"fmt"
	"path/filepath"
	"strings"
)

// IntakeItem is one staged file and the location it is filed under.
type IntakeItem struct {
	SourcePath    string
	LocationID    string
	SubLocationID string
}

// ImportRequest describes an import job. An empty JobID makes Import
// allocate one.
type ImportRequest struct {
	JobID string
	Items []IntakeItem
}

// CollectItems expands paths into intake items for one location.
// Directories are walked recursively; every file must be inside the
// staging area. Each file is listed once, in the order found.
func (s *Service) CollectItems(paths []string, locationID, subLocationID string) ([]IntakeItem, error) {
	seen := make(map[string]bool)
	var items []IntakeItem

	add := func(path string) error {
		if !s.staging.Contains(path) {
			return fmt.Errorf("%s is outside the staging directory %s", path, s.staging.Root())
		}
		if seen[path] {
			return nil
		}
		seen[path] = true
		items = append(items, IntakeItem{SourcePath: path, LocationID: locationID, SubLocationID: subLocationID})
		return nil
	}

	for _, raw := range paths {
		p, err := s.fsmgr.Resolve(raw)
		if err != nil {
			return nil, err
		}
		if !p.IsDir() {
			if err := add(p.String()); err != nil {
				return nil, err
			}
			continue
		}

		files, err := s.fsmgr.FindFiles(p, true)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", p, err)
		}
		for _, f := range files {
			if err := add(f.String()); err != nil {
				return nil, err
			}
		}
	}

	s.logger.Debug("collected intake items", "paths", len(paths), "items", len(items))
	return items, nil
}

// isWebReference reports whether path names a link to web content rather
// than a media file.
func isWebReference(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return true
	}
	switch filepath.Ext(lower) {
	case ".url", ".webloc":
		return true
	}
	return false
}
