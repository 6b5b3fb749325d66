package testutil

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/fs"
)

// ErrInjected is the failure FaultyFilesystem returns for FailFrom.
var ErrInjected = errors.New("injected filesystem failure")

// FaultyFilesystem wraps the real filesystem and injects faults into
// relocations (Link and Copy). Relocations are numbered from 1.
type FaultyFilesystem struct {
	aupat.FilesystemManager

	// FailFrom makes relocation FailFrom and every later one fail with
	// ErrInjected. Zero disables it.
	FailFrom int
	// TransientFailures makes the first n relocation attempts fail with a
	// recoverable FilesystemError.
	TransientFailures int
	// ForceCopy reports a distinct device for every path so relocations copy.
	ForceCopy bool
	// StallCopies makes every copy block until its context ends.
	StallCopies bool
	// AfterRelocate runs after each successful relocation.
	AfterRelocate func(n int, dst string)
	// BeforeRemove runs before each Remove, numbered from 1.
	BeforeRemove func(n int, path string)

	mu        sync.Mutex
	attempts  int
	succeeded int
	links     int
	copies    int
	devices   uint64
	removed   []string

	removeCalls int
}

func NewFaultyFilesystem() *FaultyFilesystem {
	return &FaultyFilesystem{FilesystemManager: fs.NewOSFilesystemManager(nil)}
}

func (f *FaultyFilesystem) DeviceID(path string) (uint64, error) {
	if f.ForceCopy {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.devices++
		return f.devices, nil
	}
	return f.FilesystemManager.DeviceID(path)
}

func (f *FaultyFilesystem) Link(src, dst string) error {
	return f.relocate(dst, func() error { return f.FilesystemManager.Link(src, dst) }, &f.links)
}

func (f *FaultyFilesystem) Copy(ctx context.Context, src, dst string) error {
	return f.relocate(dst, func() error {
		if f.StallCopies {
			<-ctx.Done()
			return ctx.Err()
		}
		return f.FilesystemManager.Copy(ctx, src, dst)
	}, &f.copies)
}

func (f *FaultyFilesystem) relocate(dst string, do func() error, counter *int) error {
	f.mu.Lock()
	f.attempts++
	if f.attempts <= f.TransientFailures {
		f.mu.Unlock()
		return aupat.NewFilesystemError("link", dst, errors.New("device busy"))
	}
	n := f.succeeded + 1
	if f.FailFrom > 0 && n >= f.FailFrom {
		f.mu.Unlock()
		return aupat.NewFilesystemError("link", dst, ErrInjected)
	}
	f.mu.Unlock()

	if err := do(); err != nil {
		return err
	}

	f.mu.Lock()
	f.succeeded++
	*counter++
	hook := f.AfterRelocate
	f.mu.Unlock()
	if hook != nil {
		hook(n, dst)
	}
	return nil
}

func (f *FaultyFilesystem) Remove(path string) error {
	f.mu.Lock()
	f.removeCalls++
	n, hook := f.removeCalls, f.BeforeRemove
	f.mu.Unlock()
	if hook != nil {
		hook(n, path)
	}

	if err := f.FilesystemManager.Remove(path); err != nil {
		return err
	}
	f.mu.Lock()
	f.removed = append(f.removed, path)
	f.mu.Unlock()
	return nil
}

// Links returns the number of successful hard links.
func (f *FaultyFilesystem) Links() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links
}

// Copies returns the number of successful copies.
func (f *FaultyFilesystem) Copies() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copies
}

// Attempts returns the number of relocation attempts, failed ones included.
func (f *FaultyFilesystem) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Removed returns the paths unlinked through Remove.
func (f *FaultyFilesystem) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

// CorruptFile replaces path with different bytes without touching other
// hard links to the same inode.
func CorruptFile(t *testing.T, path string) {
	t.Helper()
	if err := os.Remove(path); err != nil {
		t.Fatalf("removing %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("corrupting %s: %v", path, err)
	}
}
