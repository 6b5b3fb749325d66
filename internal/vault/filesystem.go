package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
)

// FileSystemVault keeps catalog snapshots in a directory, typically on
// removable or network storage:
//
//	<root>/
//	  <archiveID>/
//	    <name>.snap     (snapshot bytes)
//	    <name>.version  (operation id the snapshot includes)
type FileSystemVault struct {
	name string
	root string
}

// NewFileSystemVault creates a filesystem vault rooted at root.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}
	return &FileSystemVault{name: name, root: root}, nil
}

func (v *FileSystemVault) itemPath(archiveID, name, ext string) (string, error) {
	for _, part := range []string{archiveID, name} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid vault key %q", part)
		}
	}
	return filepath.Join(v.root, archiveID, name+ext), nil
}

// PutSnapshot writes the item atomically, then its version marker.
func (v *FileSystemVault) PutSnapshot(archiveID, name string, r io.Reader, size int64, version int64) error {
	dest, err := v.itemPath(archiveID, name, ".snap")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating vault directory: %w", err)
	}
	if err := writeAtomic(dest, r, size); err != nil {
		return err
	}

	versionPath, _ := v.itemPath(archiveID, name, ".version")
	data := strconv.FormatInt(version, 10)
	if err := writeAtomic(versionPath, strings.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("writing version marker: %w", err)
	}
	return nil
}

func (v *FileSystemVault) GetSnapshot(archiveID, name string, w io.Writer) error {
	src, err := v.itemPath(archiveID, name, ".snap")
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s not found for archive %s in vault %s", name, archiveID, v.name)
	}
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// SnapshotVersion returns 0 when no version marker exists.
func (v *FileSystemVault) SnapshotVersion(archiveID, name string) (int64, error) {
	path, err := v.itemPath(archiveID, name, ".version")
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the root is a writable directory.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	probe, err := os.CreateTemp(v.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("vault root not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// writeAtomic copies r into a temp file beside dest and renames it into
// place once exactly size bytes were written.
func writeAtomic(dest string, r io.Reader, size int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

var _ aupat.Vault = (*FileSystemVault)(nil)
