package aupat

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDuplicateContent means an asset with the same class and full digest
	// already exists.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrIdentifierCollision means a generated short identifier was already
	// taken in its scope.
	ErrIdentifierCollision = errors.New("identifier collision")

	// ErrIdentifierSpaceExhausted means every generation attempt collided.
	ErrIdentifierSpaceExhausted = errors.New("identifier space exhausted")

	// ErrMetadataToolUnavailable means the metadata extractor is missing,
	// exited non-zero or timed out.
	ErrMetadataToolUnavailable = errors.New("metadata tool unavailable")

	// ErrFilesystem is the sentinel wrapped by every FilesystemError.
	ErrFilesystem = errors.New("filesystem error")

	// ErrVerificationMismatch means a relocated file no longer hashes to the
	// digest captured when it was staged.
	ErrVerificationMismatch = errors.New("verification mismatch")

	// ErrCheckpointCorruption means a persisted checkpoint could not be
	// decoded. It is cleared only by an explicit reset.
	ErrCheckpointCorruption = errors.New("checkpoint corruption")

	// ErrJobFailed means the job's checkpoint is Failed and must be resumed
	// explicitly.
	ErrJobFailed = errors.New("job failed")

	// ErrLockHeld means another live process holds the archive lock.
	ErrLockHeld = errors.New("archive lock held")

	// ErrStaleLock means a lock marker from a process that exited without
	// releasing it was found.
	ErrStaleLock = errors.New("stale archive lock")
)

// FilesystemError describes a failed filesystem operation on a path.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() []error { return []error{ErrFilesystem, e.Err} }

// NewFilesystemError wraps err as a FilesystemError.
func NewFilesystemError(op, path string, err error) error {
	return &FilesystemError{Op: op, Path: path, Err: err}
}

// RetryExhaustedError is returned when a retryable operation kept failing.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err is worth retrying near its origin.
// Filesystem errors and identifier collisions are; cancellation and an
// exhausted identifier space are not.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrIdentifierSpaceExhausted) {
		return false
	}
	return errors.Is(err, ErrFilesystem) || errors.Is(err, ErrIdentifierCollision)
}
