package aupat

import "context"

// FilesystemManager abstracts the filesystem operations the pipeline performs,
// so tests can inject faults without touching the relocation logic.
type FilesystemManager interface {
	// Resolve makes rawPath absolute, stats it and rejects symlinks,
	// devices, pipes and sockets.
	Resolve(rawPath string) (*Path, error)

	// FindFiles returns the regular files under a directory in natural
	// sort order. Hidden files are skipped.
	FindFiles(dir *Path, recursive bool) ([]*Path, error)

	// Exists reports whether anything exists at path.
	Exists(path string) (bool, error)

	// DeviceID returns the identifier of the storage device holding path.
	DeviceID(path string) (uint64, error)

	// Link creates dst as a hard link to src. dst must not exist.
	Link(src, dst string) error

	// Copy copies src to dst through a temporary file in dst's directory and
	// preserves the modification time. dst must not exist. It stops between
	// chunks when ctx ends and returns ctx.Err().
	Copy(ctx context.Context, src, dst string) error

	// Mkdir creates a single directory. It returns false when the directory
	// already existed.
	Mkdir(path string) (bool, error)

	// CheckWritable verifies that dir is a directory the process can write to.
	CheckWritable(dir string) error

	// Remove unlinks a file.
	Remove(path string) error

	// RemoveDirIfEmpty removes dir only when it has no entries. It returns
	// false when the directory was kept.
	RemoveDirIfEmpty(dir string) (bool, error)
}

// ArchiveLock is a held single-writer lock on an archive root.
type ArchiveLock interface {
	Release() error
}

// Locker acquires the single-writer lock of an archive root.
type Locker interface {
	// Acquire returns ErrLockHeld when a live process holds the lock and
	// ErrStaleLock when a dead process left its marker behind.
	Acquire(root string) (ArchiveLock, error)
}
