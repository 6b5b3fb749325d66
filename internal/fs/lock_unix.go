//go:build unix

package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
)

// LockFileName is the marker file of the single-writer lock in an archive root.
const LockFileName = ".aupat.lock"

// LockInfo describes the process recorded in a lock marker.
type LockInfo struct {
	PID       int
	Host      string
	StartedAt time.Time
	// Held reports whether a live process currently holds the flock.
	Held bool
	// Alive reports whether PID is running on this host.
	Alive bool
}

// ArchiveLocker takes an exclusive flock(2) on <root>/.aupat.lock and writes
// the holder's pid, host and start time into it. Release removes the file,
// so a marker found by a later Acquire was left by a process that died.
type ArchiveLocker struct {
	host string
	now  func() time.Time
}

var _ aupat.Locker = (*ArchiveLocker)(nil)

func NewArchiveLocker() *ArchiveLocker {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &ArchiveLocker{host: host, now: time.Now}
}

type heldLock struct {
	file *os.File
	path string
}

// Acquire returns aupat.ErrLockHeld when another process holds the lock and
// aupat.ErrStaleLock when a dead holder's marker is still present.
func (l *ArchiveLocker) Acquire(root string) (aupat.ArchiveLock, error) {
	path := filepath.Join(root, LockFileName)

	for {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, aupat.NewFilesystemError("open", path, err)
		}

		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				info, _ := readMarker(path)
				return nil, fmt.Errorf("%w: %s", aupat.ErrLockHeld, describe(path, info))
			}
			return nil, aupat.NewFilesystemError("flock", path, err)
		}

		// The previous holder may have removed the file between our open and
		// flock; the lock then protects an unlinked inode. Start over.
		same, err := sameFile(f, path)
		if err != nil {
			unlock(f)
			return nil, err
		}
		if !same {
			unlock(f)
			continue
		}

		if info, err := parseMarker(f); err != nil {
			unlock(f)
			return nil, err
		} else if info != nil {
			unlock(f)
			info.Alive = processAlive(info.PID)
			return nil, fmt.Errorf("%w: %s; run `aupat lock clear` once the archive has been checked", aupat.ErrStaleLock, describe(path, info))
		}

		if err := l.writeMarker(f); err != nil {
			unlock(f)
			return nil, aupat.NewFilesystemError("write", path, err)
		}
		return &heldLock{file: f, path: path}, nil
	}
}

// Release removes the marker and drops the flock.
func (h *heldLock) Release() error {
	if h.file == nil {
		return nil
	}
	rmErr := os.Remove(h.path)
	unlock(h.file)
	h.file = nil
	if rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return aupat.NewFilesystemError("remove", h.path, rmErr)
	}
	return nil
}

// Status returns the marker in root, or nil when the archive is unlocked.
func (l *ArchiveLocker) Status(root string) (*LockInfo, error) {
	path := filepath.Join(root, LockFileName)
	info, err := readMarker(path)
	if err != nil || info == nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, aupat.NewFilesystemError("open", path, err)
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); err != nil {
		info.Held = true
	} else {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}
	info.Alive = processAlive(info.PID)
	return info, nil
}

// Clear removes a stale marker. It refuses while a live process holds the lock.
func (l *ArchiveLocker) Clear(root string) error {
	path := filepath.Join(root, LockFileName)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return aupat.NewFilesystemError("open", path, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("%w: refusing to clear", aupat.ErrLockHeld)
		}
		return aupat.NewFilesystemError("flock", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	if err := os.Remove(path); err != nil {
		return aupat.NewFilesystemError("remove", path, err)
	}
	return nil
}

func (l *ArchiveLocker) writeMarker(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	marker := fmt.Sprintf("pid=%d\nhost=%s\nstarted=%s\n", os.Getpid(), l.host, l.now().UTC().Format(time.RFC3339))
	if _, err := f.WriteAt([]byte(marker), 0); err != nil {
		return err
	}
	return f.Sync()
}

func readMarker(path string) (*LockInfo, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, aupat.NewFilesystemError("open", path, err)
	}
	defer f.Close()
	return parseMarker(f)
}

// parseMarker returns nil for an empty marker.
func parseMarker(f *os.File) (*LockInfo, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	info := &LockInfo{}
	empty := true
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		empty = false
		switch key {
		case "pid":
			info.PID, _ = strconv.Atoi(value)
		case "host":
			info.Host = value
		case "started":
			info.StartedAt, _ = time.Parse(time.RFC3339, value)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading lock marker: %w", err)
	}
	if empty {
		return nil, nil
	}
	return info, nil
}

func describe(path string, info *LockInfo) string {
	if info == nil {
		return path
	}
	state := "not running"
	if info.Alive || info.Held {
		state = "running"
	}
	return fmt.Sprintf("%s held by pid %d on %s since %s (%s)",
		path, info.PID, info.Host, info.StartedAt.Format(time.RFC3339), state)
}

// processAlive probes pid with signal 0. EPERM means the process exists
// under another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func sameFile(f *os.File, path string) (bool, error) {
	var a, b unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &a); err != nil {
		return false, aupat.NewFilesystemError("fstat", path, err)
	}
	if err := unix.Stat(path, &b); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, aupat.NewFilesystemError("stat", path, err)
	}
	return a.Dev == b.Dev && a.Ino == b.Ino, nil
}

func unlock(f *os.File) {
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}
