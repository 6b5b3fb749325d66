package aupat

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// FolderBuilder scaffolds the archive directories of a location.
type FolderBuilder struct {
	fsmgr      FilesystemManager
	root       string
	categories []model.HardwareCategory
	logger     Logger
}

// NewFolderBuilder creates a builder for the archive at root. categories
// must include other and unknown; Classifier.Categories provides them.
func NewFolderBuilder(fsmgr FilesystemManager, root string, categories []model.HardwareCategory, logger Logger) *FolderBuilder {
	return &FolderBuilder{fsmgr: fsmgr, root: root, categories: categories, logger: logger}
}

// RequiredDirs returns every category directory of loc, relative to the root.
func (b *FolderBuilder) RequiredDirs(loc *model.Location) []string {
	dirs := make([]string, 0, len(model.AssetClasses)*len(b.categories))
	for _, class := range model.AssetClasses {
		for _, cat := range b.categories {
			dirs = append(dirs, CategoryDir(loc, class, cat))
		}
	}
	return dirs
}

// EnsureStructure creates every directory of loc that does not exist yet,
// parents before children, and verifies each category directory is
// writable. It returns the absolute paths it created; an already complete
// structure yields an empty list. When undo is non-nil each created
// directory is appended to it.
func (b *FolderBuilder) EnsureStructure(loc *model.Location, undo *UndoLog) ([]string, error) {
	var created []string
	seen := make(map[string]bool)

	for _, rel := range b.RequiredDirs(loc) {
		current := b.root
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			current = filepath.Join(current, part)
			if seen[current] {
				continue
			}
			seen[current] = true

			made, err := b.fsmgr.Mkdir(current)
			if err != nil {
				return created, fmt.Errorf("creating %s: %w", current, err)
			}
			if made {
				created = append(created, current)
				if undo != nil {
					undo.Append(UndoEntry{Kind: UndoMkdir, Path: current})
				}
			}
		}

		if err := b.fsmgr.CheckWritable(current); err != nil {
			return created, fmt.Errorf("archive directory not writable: %w", err)
		}
	}

	if len(created) > 0 {
		b.logger.Info("archive structure created", "location", loc.ID, "directories", len(created))
	}
	return created, nil
}
