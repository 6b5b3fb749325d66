package output

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/disiqueira/gotree/v3"
)

// VisualTree renders slash-separated relative paths as a directory tree.
type VisualTree struct {
	tree gotree.Tree
	dirs map[string]gotree.Tree
}

func NewVisualTree(rootLabel string) VisualTree {
	return VisualTree{tree: gotree.New(rootLabel), dirs: make(map[string]gotree.Tree)}
}

func (t VisualTree) getDir(dirPath, label string) (dir gotree.Tree) {
	if dirPath == "." {
		return t.tree
	}
	dir = t.dirs[dirPath]
	if dir == nil {
		parent := t.getDir(filepath.Dir(dirPath), "")
		if label == "" {
			label = filepath.Base(dirPath) + "/"
		}
		dir = parent.Add(label)
		t.dirs[dirPath] = dir
	}
	return
}

// InsertDir adds a directory node. label replaces the default "name/".
// Parents must be inserted first to carry their own labels.
func (t VisualTree) InsertDir(dirPath, label string) {
	t.getDir(filepath.Clean(dirPath), label)
}

// InsertFile adds a file node under its directory.
func (t VisualTree) InsertFile(filePath string) {
	dir := t.getDir(filepath.Dir(filepath.Clean(filePath)), "")
	dir.Add(filepath.Base(filePath))
}

func (t VisualTree) Render() string {
	return t.tree.Print()
}

// RenderTree walks root and renders its directories, each labelled with the
// number of files it holds directly. Hidden entries are skipped.
func RenderTree(root string) (string, error) {
	var dirs []string
	counts := make(map[string]int)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if rel != "." {
				dirs = append(dirs, rel)
			}
			return nil
		}
		counts[filepath.Dir(rel)]++
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking %s: %w", root, err)
	}

	t := NewVisualTree(dirLabel(filepath.Base(root), counts["."]))
	for _, dir := range dirs {
		t.InsertDir(dir, dirLabel(filepath.Base(dir), counts[dir]))
	}
	return t.Render(), nil
}

func dirLabel(name string, files int) string {
	switch files {
	case 0:
		return name + "/"
	case 1:
		return name + "/ (1 file)"
	}
	return fmt.Sprintf("%s/ (%d files)", name, files)
}
