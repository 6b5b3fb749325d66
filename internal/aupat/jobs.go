package aupat

import (
	"errors"
	"fmt"

	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// JobStatus is the inspectable state of an import job.
type JobStatus struct {
	JobID      string
	Checkpoint *Checkpoint // nil when the record is corrupt
	Corrupt    error
	Entries    []*model.StagingEntry
}

// GetJob returns the checkpoint and remaining staging entries of a job.
// A corrupt checkpoint is reported in Corrupt rather than as an error so
// it can be inspected before a reset.
func (s *Service) GetJob(jobID string) (*JobStatus, error) {
	status := &JobStatus{JobID: jobID}

	cp, err := s.checkpoints.Load(jobID)
	switch {
	case errors.Is(err, ErrCheckpointCorruption):
		status.Corrupt = err
	case err != nil:
		return nil, err
	default:
		status.Checkpoint = cp
	}

	entries, err := s.db.ListStagingEntries(jobID)
	if err != nil {
		return nil, fmt.Errorf("listing staging entries: %w", err)
	}
	status.Entries = entries

	if status.Checkpoint == nil && status.Corrupt == nil && len(entries) == 0 {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return status, nil
}

// ListJobs returns the decoded checkpoints of all unfinished jobs.
// Corrupt records are returned with a nil State.
func (s *Service) ListJobs() ([]*Checkpoint, error) {
	recs, err := s.db.ListCheckpoints(ImportOperation)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	jobs := make([]*Checkpoint, 0, len(recs))
	for _, rec := range recs {
		cp, err := DecodeCheckpoint(rec)
		if err != nil {
			cp = &Checkpoint{Operation: rec.Operation, JobID: rec.JobID, Total: rec.Total, UpdatedAt: rec.UpdatedAt}
		}
		jobs = append(jobs, cp)
	}
	return jobs, nil
}

// ResetJob is the manual recovery for a failed or corrupt job. Assets that
// already passed verification are finalized; every other journaled mutation
// is rolled back and the job's checkpoint, staging entries and unfinalized
// assets are purged. Staged files are left in place so they can be
// imported again.
func (s *Service) ResetJob(jobID string) error {
	lock, err := s.locker.Acquire(s.root)
	if err != nil {
		return err
	}
	defer s.release(lock)

	records, err := s.db.ListUndoRecords(jobID)
	if err != nil {
		return fmt.Errorf("loading undo journal: %w", err)
	}
	undo, err := s.settleVerified(jobID, undoLogFromRecords(records))
	if err != nil {
		return err
	}
	if undo.Len() > 0 {
		report := s.rollback.Rollback(undo)
		s.logger.Warn("reset rolled back journaled mutations", "job", jobID, "reverted", report.Reverted, "failures", len(report.Failures))
		if len(report.Failures) > 0 {
			return fmt.Errorf("reset of %s: %d mutations could not be reverted; see log", jobID, len(report.Failures))
		}
	}

	if err := s.db.PurgeJob(ImportOperation, jobID); err != nil {
		return fmt.Errorf("purging job %s: %w", jobID, err)
	}
	s.logger.Warn("job reset", "job", jobID)
	return nil
}
