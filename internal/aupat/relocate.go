package aupat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// Action is what the engine does with one staging entry.
type Action int

const (
	ActionRelocate Action = iota
	ActionDuplicate
	ActionSkip
)

// Placement is a staging entry with its decided action. For ActionRelocate
// Asset is at PATH_ASSIGNED and Dest is the absolute archive path.
type Placement struct {
	Entry       *model.StagingEntry
	Action      Action
	Asset       *model.Asset
	Dest        string
	DuplicateOf string
	Reason      string
}

// Relocator moves one staged file into the archive without touching the source.
type Relocator interface {
	Kind() UndoKind
	Relocate(ctx context.Context, src, dst string) error
}

type hardlinkRelocator struct{ fsmgr FilesystemManager }

func (hardlinkRelocator) Kind() UndoKind { return UndoLink }

// Relocate links src. A hard link is a single metadata operation, so ctx is
// only checked before it.
func (r hardlinkRelocator) Relocate(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.fsmgr.Link(src, dst)
}

type copyRelocator struct{ fsmgr FilesystemManager }

func (copyRelocator) Kind() UndoKind { return UndoCopy }
func (r copyRelocator) Relocate(ctx context.Context, src, dst string) error {
	return r.fsmgr.Copy(ctx, src, dst)
}

// SelectRelocator hardlinks when src and the destination directory live on
// the same device and copies otherwise.
func SelectRelocator(fsmgr FilesystemManager, src, dstDir string) (Relocator, error) {
	srcDev, err := fsmgr.DeviceID(src)
	if err != nil {
		return nil, err
	}
	dstDev, err := fsmgr.DeviceID(dstDir)
	if err != nil {
		return nil, err
	}
	if srcDev == dstDev {
		return hardlinkRelocator{fsmgr: fsmgr}, nil
	}
	return copyRelocator{fsmgr: fsmgr}, nil
}

// RelocationJournal persists the engine's progress.
type RelocationJournal interface {
	// Intend persists a mutation before the engine performs it.
	Intend(e UndoEntry) error
	// Advance persists the outcome of p together with the checkpoint
	// advance past it.
	Advance(p *Placement) error
}

// BatchResult lists what the engine did, in plan order.
type BatchResult struct {
	Relocated  []*Placement
	Duplicates []*Placement
	Skipped    []*Placement
	Links      int
	Copies     int
}

// Engine performs the staging-to-archive relocation of a batch.
type Engine struct {
	fsmgr       FilesystemManager
	rollback    *RollbackCoordinator
	retry       RetryPolicy
	copyTimeout time.Duration
	clock       Clock
	logger      Logger
}

// NewEngine creates an engine. A positive copyTimeout bounds each copy
// attempt; zero leaves copies bounded only by the caller's context.
func NewEngine(fsmgr FilesystemManager, rollback *RollbackCoordinator, retry RetryPolicy, copyTimeout time.Duration, clock Clock, logger Logger) *Engine {
	return &Engine{fsmgr: fsmgr, rollback: rollback, retry: retry, copyTimeout: copyTimeout, clock: clock, logger: logger}
}

// RelocateBatch executes plan in order. Each relocation is appended to undo
// before the journal advances past its entry. On failure the whole undo
// log, including mutations made earlier in the batch, is rolled back and
// the original error returned. On cancellation the engine stops between
// entries without rolling back; the journal lets a later run resume.
func (e *Engine) RelocateBatch(ctx context.Context, plan []*Placement, undo *UndoLog, journal RelocationJournal) (*BatchResult, error) {
	result := &BatchResult{}

	for _, p := range plan {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("relocation interrupted", "next_index", p.Entry.Index, "error", err)
			return result, err
		}

		if p.Action == ActionRelocate {
			kind, err := e.relocate(ctx, p, undo, journal)
			if err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					return result, err
				}
				return result, e.abort(undo, p, err)
			}
			if kind == UndoLink {
				result.Links++
			} else {
				result.Copies++
			}
		}

		if err := journal.Advance(p); err != nil {
			return result, e.abort(undo, p, fmt.Errorf("recording entry %d: %w", p.Entry.Index, err))
		}

		switch p.Action {
		case ActionRelocate:
			result.Relocated = append(result.Relocated, p)
		case ActionDuplicate:
			result.Duplicates = append(result.Duplicates, p)
		case ActionSkip:
			result.Skipped = append(result.Skipped, p)
		}
	}

	return result, nil
}

func (e *Engine) relocate(ctx context.Context, p *Placement, undo *UndoLog, journal RelocationJournal) (UndoKind, error) {
	src := p.Entry.SourcePath

	exists, err := e.fsmgr.Exists(p.Dest)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("archive destination already exists: %s", p.Dest)
	}

	var relocator Relocator
	err = e.retry.Do(ctx, e.clock, e.logger, "select relocation strategy", func() error {
		var err error
		relocator, err = SelectRelocator(e.fsmgr, src, filepath.Dir(p.Dest))
		return err
	})
	if err != nil {
		return "", err
	}

	entry := UndoEntry{Kind: relocator.Kind(), Path: p.Dest}
	if err := journal.Intend(entry); err != nil {
		return "", fmt.Errorf("journaling relocation: %w", err)
	}

	err = e.retry.Do(ctx, e.clock, e.logger, string(relocator.Kind())+" "+src, func() error {
		return e.attempt(ctx, relocator, src, p.Dest)
	})
	if err != nil {
		return "", err
	}
	undo.Append(entry)

	if err := p.Asset.Advance(model.StateRelocated); err != nil {
		return "", err
	}

	e.logger.Debug("relocated", "strategy", relocator.Kind(), "source", src, "dest", p.Dest)
	return relocator.Kind(), nil
}

// attempt runs one relocation. A copy that outlives copyTimeout fails with
// a recoverable FilesystemError; the caller's own cancellation is returned
// as is.
func (e *Engine) attempt(ctx context.Context, relocator Relocator, src, dst string) error {
	if relocator.Kind() != UndoCopy || e.copyTimeout <= 0 {
		return relocator.Relocate(ctx, src, dst)
	}

	actx, cancel := context.WithTimeout(ctx, e.copyTimeout)
	defer cancel()
	err := relocator.Relocate(actx, src, dst)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return NewFilesystemError("copy", dst, fmt.Errorf("timed out after %s", e.copyTimeout))
	}
	return err
}

func (e *Engine) abort(undo *UndoLog, p *Placement, cause error) error {
	e.logger.Error("relocation failed, rolling back batch", "index", p.Entry.Index, "source", p.Entry.SourcePath, "error", cause)
	report := e.rollback.Rollback(undo)
	if len(report.Failures) > 0 {
		e.logger.Error("rollback incomplete", "reverted", report.Reverted, "failures", len(report.Failures))
	}
	return cause
}
