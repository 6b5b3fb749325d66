package aupat

import (
	"errors"
	"io/fs"
)

// RollbackReport summarizes one unwind.
type RollbackReport struct {
	Reverted int
	Kept     int // created directories left in place because they were not empty
	Failures []error
}

// RollbackCoordinator replays an undo log in reverse.
type RollbackCoordinator struct {
	fsmgr  FilesystemManager
	logger Logger
}

func NewRollbackCoordinator(fsmgr FilesystemManager, logger Logger) *RollbackCoordinator {
	return &RollbackCoordinator{fsmgr: fsmgr, logger: logger}
}

// Rollback reverses every entry of log, newest first, and clears it.
// A failed reversal is logged and recorded; the unwind always continues.
func (r *RollbackCoordinator) Rollback(log *UndoLog) RollbackReport {
	var report RollbackReport
	entries := log.Entries()

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		switch e.Kind {
		case UndoLink, UndoCopy:
			err := r.fsmgr.Remove(e.Path)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				r.logger.Error("rollback: removing relocated file failed", "kind", e.Kind, "path", e.Path, "error", err)
				report.Failures = append(report.Failures, err)
				continue
			}
			r.logger.Info("rollback: removed relocated file", "kind", e.Kind, "path", e.Path)
			report.Reverted++

		case UndoMkdir:
			removed, err := r.fsmgr.RemoveDirIfEmpty(e.Path)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				r.logger.Error("rollback: removing directory failed", "path", e.Path, "error", err)
				report.Failures = append(report.Failures, err)
				continue
			}
			if err == nil && !removed {
				r.logger.Info("rollback: kept non-empty directory", "path", e.Path)
				report.Kept++
				continue
			}
			r.logger.Info("rollback: removed directory", "path", e.Path)
			report.Reverted++

		default:
			r.logger.Error("rollback: unknown undo entry", "kind", e.Kind, "path", e.Path)
			report.Failures = append(report.Failures, errors.New("unknown undo kind "+string(e.Kind)))
		}
	}

	log.Clear()
	return report
}
