package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/facette/natsort"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct {
	ignore *IgnoreMatcher
}

// NewOSFilesystemManager creates a filesystem manager. ignorePatterns are
// applied by FindFiles on top of each scanned directory's .aupatignore.
func NewOSFilesystemManager(ignorePatterns []string) *OSFilesystemManager {
	return &OSFilesystemManager{ignore: NewIgnoreMatcher(append(defaultIgnorePatterns, ignorePatterns...))}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*aupat.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	// Lstat so a symlink is seen as one rather than followed.
	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, aupat.NewFilesystemError("stat", absPath, err)
	}

	mode := info.Mode()
	if mode&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlinks not supported: %s", absPath)
	}
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return aupat.NewPath(absPath, info.IsDir(), info), nil
}

// FindFiles discovers regular files under the given directory path, in
// natural order. Hidden entries and ignored paths are skipped.
func (m *OSFilesystemManager) FindFiles(path *aupat.Path, recursive bool) ([]*aupat.Path, error) {
	if !path.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", path.String())
	}

	root := path.String()
	extra, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := m.ignore.With(extra)

	var paths []*aupat.Path
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(d.Name(), ".")

		if d.IsDir() {
			if !recursive || hidden || matcher.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !d.Type().IsRegular() || matcher.Match(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		paths = append(paths, aupat.NewPath(p, false, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return natsort.Compare(paths[i].String(), paths[j].String())
	})
	return paths, nil
}

func (m *OSFilesystemManager) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, aupat.NewFilesystemError("stat", path, err)
	}
}

func (m *OSFilesystemManager) Link(src, dst string) error {
	if err := os.Link(src, dst); err != nil {
		return aupat.NewFilesystemError("link", dst, err)
	}
	return nil
}

// Copy writes src to a temporary file next to dst in chunks, syncs it and
// renames it into place, so dst is either absent or complete. When ctx
// ends mid-copy the temporary file is removed and ctx.Err() returned.
func (m *OSFilesystemManager) Copy(ctx context.Context, src, dst string) error {
	if exists, err := m.Exists(dst); err != nil {
		return err
	} else if exists {
		return aupat.NewFilesystemError("copy", dst, fs.ErrExist)
	}

	in, err := os.Open(src)
	if err != nil {
		return aupat.NewFilesystemError("open", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return aupat.NewFilesystemError("stat", src, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".aupat-copy-*")
	if err != nil {
		return aupat.NewFilesystemError("create", dst, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := CopyChunks(ctx, tmp, in, DefaultChunkSize); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return aupat.NewFilesystemError("copy", src, err)
	}
	if err := tmp.Sync(); err != nil {
		return aupat.NewFilesystemError("sync", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return aupat.NewFilesystemError("close", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return aupat.NewFilesystemError("chmod", tmpPath, err)
	}
	if err := os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		return aupat.NewFilesystemError("chtimes", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return aupat.NewFilesystemError("rename", dst, err)
	}
	committed = true
	return nil
}

func (m *OSFilesystemManager) Mkdir(path string) (bool, error) {
	err := os.Mkdir(path, 0o755)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrExist) {
		info, statErr := os.Stat(path)
		if statErr == nil && info.IsDir() {
			return false, nil
		}
		return false, aupat.NewFilesystemError("mkdir", path, fmt.Errorf("exists and is not a directory"))
	}
	return false, aupat.NewFilesystemError("mkdir", path, err)
}

// CheckWritable creates and removes a probe file in dir.
func (m *OSFilesystemManager) CheckWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return aupat.NewFilesystemError("stat", dir, err)
	}
	if !info.IsDir() {
		return aupat.NewFilesystemError("check", dir, fmt.Errorf("not a directory"))
	}
	probe, err := os.CreateTemp(dir, ".aupat-probe-*")
	if err != nil {
		return aupat.NewFilesystemError("write", dir, err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func (m *OSFilesystemManager) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return aupat.NewFilesystemError("remove", path, err)
	}
	return nil
}

func (m *OSFilesystemManager) RemoveDirIfEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, aupat.NewFilesystemError("read", dir, err)
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := os.Remove(dir); err != nil {
		return false, aupat.NewFilesystemError("rmdir", dir, err)
	}
	return true, nil
}

// Compile-time check that OSFilesystemManager implements aupat.FilesystemManager interface
var _ aupat.FilesystemManager = (*OSFilesystemManager)(nil)
