package aupat

import (
	"errors"
	"fmt"
	"time"

	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// ImportOperation is the checkpoint operation name of import jobs.
const ImportOperation = "import"

// Progress locates a job within its entries. Entries before BatchStart are
// committed; entries in [BatchStart, NextIndex) belong to the batch in
// flight and have been processed.
type Progress struct {
	BatchStart int
	NextIndex  int
	Total      int
}

// CheckpointState is the state of a job checkpoint: one of Pending,
// InProgress, Completed or Failed.
type CheckpointState interface {
	status() string
}

type Pending struct{}

type InProgress struct {
	Progress Progress
}

type Completed struct{}

// Failed retains the progress at which the failed batch started, so an
// explicit resume reprocesses that batch.
type Failed struct {
	Progress Progress
	Reason   string
}

func (Pending) status() string    { return "pending" }
func (InProgress) status() string { return "in_progress" }
func (Completed) status() string  { return "completed" }
func (Failed) status() string     { return "failed" }

// StatusName returns the persisted tag of a state.
func StatusName(s CheckpointState) string { return s.status() }

// Checkpoint is the decoded checkpoint of one job.
type Checkpoint struct {
	Operation string
	JobID     string
	Total     int
	State     CheckpointState
	UpdatedAt time.Time
}

// Progress returns the job progress for InProgress and Failed states and
// a zero Progress otherwise.
func (c *Checkpoint) Progress() Progress {
	switch s := c.State.(type) {
	case InProgress:
		return s.Progress
	case Failed:
		return s.Progress
	}
	return Progress{Total: c.Total}
}

// CheckpointStore persists checkpoint records.
type CheckpointStore interface {
	FindCheckpoint(operation, jobID string) (*model.Checkpoint, error)
	SaveCheckpoint(cp *model.Checkpoint) error
	DeleteCheckpoint(operation, jobID string) error
}

// CheckpointManager persists bulk-job progress for crash-safe resume.
type CheckpointManager struct {
	store     CheckpointStore
	operation string
	clock     Clock
	logger    Logger
}

func NewCheckpointManager(store CheckpointStore, operation string, clock Clock, logger Logger) *CheckpointManager {
	return &CheckpointManager{store: store, operation: operation, clock: clock, logger: logger}
}

// Begin starts or resumes jobID. An InProgress checkpoint is returned as is
// so the caller resumes at its NextIndex; a missing one is created as
// Pending and moved to InProgress at 0. fresh reports whether the caller
// must register the job's entries. A Failed checkpoint is not resumed
// implicitly: Begin returns ErrJobFailed and the caller must use Resume.
func (m *CheckpointManager) Begin(jobID string, total int) (cp *Checkpoint, fresh bool, err error) {
	existing, err := m.Load(jobID)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		switch s := existing.State.(type) {
		case InProgress:
			m.logger.Info("resuming job", "job", jobID, "next_index", s.Progress.NextIndex, "total", existing.Total)
			return existing, false, nil
		case Failed:
			return nil, false, fmt.Errorf("%w: %s: %s", ErrJobFailed, jobID, s.Reason)
		case Pending:
			// Registration never committed; start over.
			m.logger.Warn("found pending checkpoint, restarting registration", "job", jobID)
		case Completed:
			// Completed checkpoints are purged; a stray one is treated as new.
		}
	}

	pending := &Checkpoint{Operation: m.operation, JobID: jobID, Total: total, State: Pending{}}
	if err := m.save(pending); err != nil {
		return nil, false, err
	}

	cp = &Checkpoint{
		Operation: m.operation,
		JobID:     jobID,
		Total:     total,
		State:     InProgress{Progress: Progress{Total: total}},
	}
	return cp, true, nil
}

// Start moves a freshly registered job to InProgress.
func (m *CheckpointManager) Start(cp *Checkpoint) error {
	return m.save(cp)
}

// Advance records that the entry at index has been processed.
func (m *CheckpointManager) Advance(jobID string, index int) error {
	cp, err := m.Load(jobID)
	if err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("no checkpoint for job %s", jobID)
	}
	next, err := m.Advanced(cp, index)
	if err != nil {
		return err
	}
	return m.save(next)
}

// Advanced returns the checkpoint after processing the entry at index,
// without persisting it. Callers persist it inside the unit of work that
// records the entry.
func (m *CheckpointManager) Advanced(cp *Checkpoint, index int) (*Checkpoint, error) {
	s, ok := cp.State.(InProgress)
	if !ok {
		return nil, fmt.Errorf("advancing job %s: checkpoint is %s, not in_progress", cp.JobID, cp.State.status())
	}
	if index < s.Progress.NextIndex || index >= cp.Total {
		return nil, fmt.Errorf("advancing job %s: index %d outside [%d, %d)", cp.JobID, index, s.Progress.NextIndex, cp.Total)
	}
	s.Progress.NextIndex = index + 1
	return &Checkpoint{Operation: cp.Operation, JobID: cp.JobID, Total: cp.Total, State: s}, nil
}

// Committed returns the checkpoint after the batch ending at end has been
// finalized: the next batch starts at end.
func (m *CheckpointManager) Committed(cp *Checkpoint, end int) *Checkpoint {
	return &Checkpoint{
		Operation: cp.Operation,
		JobID:     cp.JobID,
		Total:     cp.Total,
		State:     InProgress{Progress: Progress{BatchStart: end, NextIndex: end, Total: cp.Total}},
	}
}

// FailedAt returns the Failed checkpoint of a batch that was rolled back.
func (m *CheckpointManager) FailedAt(cp *Checkpoint, batchStart int, reason string) *Checkpoint {
	return &Checkpoint{
		Operation: cp.Operation,
		JobID:     cp.JobID,
		Total:     cp.Total,
		State:     Failed{Progress: Progress{BatchStart: batchStart, NextIndex: batchStart, Total: cp.Total}, Reason: reason},
	}
}

// Complete purges the checkpoint of a finished job.
func (m *CheckpointManager) Complete(jobID string) error {
	if err := m.store.DeleteCheckpoint(m.operation, jobID); err != nil {
		return fmt.Errorf("completing job %s: %w", jobID, err)
	}
	m.logger.Info("job completed", "job", jobID)
	return nil
}

// Fail marks the job Failed and retains the reason. Progress rewinds to
// the start of the batch in flight.
func (m *CheckpointManager) Fail(jobID, reason string) error {
	cp, err := m.Load(jobID)
	if err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("no checkpoint for job %s", jobID)
	}
	p := cp.Progress()
	return m.save(m.FailedAt(cp, p.BatchStart, reason))
}

// Resume explicitly continues a job. A Failed checkpoint returns to
// InProgress at the start of the failed batch.
func (m *CheckpointManager) Resume(jobID string) (*Checkpoint, error) {
	cp, err := m.Load(jobID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("no checkpoint for job %s", jobID)
	}

	switch s := cp.State.(type) {
	case InProgress:
		return cp, nil
	case Failed:
		m.logger.Info("resuming failed job", "job", jobID, "batch_start", s.Progress.BatchStart, "previous_failure", s.Reason)
		resumed := &Checkpoint{
			Operation: cp.Operation,
			JobID:     cp.JobID,
			Total:     cp.Total,
			State:     InProgress{Progress: Progress{BatchStart: s.Progress.BatchStart, NextIndex: s.Progress.BatchStart, Total: cp.Total}},
		}
		if err := m.save(resumed); err != nil {
			return nil, err
		}
		return resumed, nil
	default:
		return nil, fmt.Errorf("job %s cannot be resumed from %s", jobID, cp.State.status())
	}
}

// Reset deletes the checkpoint whatever its state, including corrupt ones.
func (m *CheckpointManager) Reset(jobID string) error {
	if err := m.store.DeleteCheckpoint(m.operation, jobID); err != nil {
		return fmt.Errorf("resetting job %s: %w", jobID, err)
	}
	m.logger.Warn("checkpoint reset", "job", jobID)
	return nil
}

// Load returns the decoded checkpoint of jobID, nil if there is none, or
// an error wrapping ErrCheckpointCorruption for an undecodable record.
func (m *CheckpointManager) Load(jobID string) (*Checkpoint, error) {
	rec, err := m.store.FindCheckpoint(m.operation, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint for %s: %w", jobID, err)
	}
	if rec == nil {
		return nil, nil
	}
	return DecodeCheckpoint(rec)
}

// Record returns the persisted form of cp stamped with the current time.
func (m *CheckpointManager) Record(cp *Checkpoint) *model.Checkpoint {
	rec := EncodeCheckpoint(cp)
	rec.UpdatedAt = m.clock.Now()
	return rec
}

func (m *CheckpointManager) save(cp *Checkpoint) error {
	if err := m.store.SaveCheckpoint(m.Record(cp)); err != nil {
		return fmt.Errorf("saving checkpoint for %s: %w", cp.JobID, err)
	}
	return nil
}

// EncodeCheckpoint converts cp to its persisted form.
func EncodeCheckpoint(cp *Checkpoint) *model.Checkpoint {
	rec := &model.Checkpoint{
		Operation: cp.Operation,
		JobID:     cp.JobID,
		Status:    cp.State.status(),
		Total:     cp.Total,
		UpdatedAt: cp.UpdatedAt,
	}
	switch s := cp.State.(type) {
	case InProgress:
		rec.BatchStart = s.Progress.BatchStart
		rec.NextIndex = s.Progress.NextIndex
	case Failed:
		rec.BatchStart = s.Progress.BatchStart
		rec.NextIndex = s.Progress.NextIndex
		rec.Reason = s.Reason
	}
	return rec
}

// DecodeCheckpoint validates a persisted record and converts it to a
// Checkpoint. Invalid records wrap ErrCheckpointCorruption.
func DecodeCheckpoint(rec *model.Checkpoint) (*Checkpoint, error) {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: job %s: %s", ErrCheckpointCorruption, rec.JobID, fmt.Sprintf(format, args...))
	}

	if rec.Total < 0 {
		return nil, corrupt("negative total %d", rec.Total)
	}
	progress := Progress{BatchStart: rec.BatchStart, NextIndex: rec.NextIndex, Total: rec.Total}
	if rec.BatchStart < 0 || rec.NextIndex < rec.BatchStart || rec.NextIndex > rec.Total {
		return nil, corrupt("inconsistent progress batch_start=%d next_index=%d total=%d", rec.BatchStart, rec.NextIndex, rec.Total)
	}

	cp := &Checkpoint{Operation: rec.Operation, JobID: rec.JobID, Total: rec.Total, UpdatedAt: rec.UpdatedAt}
	switch rec.Status {
	case "pending":
		cp.State = Pending{}
	case "in_progress":
		cp.State = InProgress{Progress: progress}
	case "completed":
		cp.State = Completed{}
	case "failed":
		if rec.Reason == "" {
			return nil, corrupt("failed checkpoint without a reason")
		}
		cp.State = Failed{Progress: progress, Reason: rec.Reason}
	default:
		return nil, corrupt("unknown status %q", rec.Status)
	}
	return cp, nil
}

// IsCheckpointCorruption reports whether err came from an undecodable checkpoint.
func IsCheckpointCorruption(err error) bool {
	return errors.Is(err, ErrCheckpointCorruption)
}
