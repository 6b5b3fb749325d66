package aupat

import "fmt"

// OutcomeKind is the per-file result of an import.
type OutcomeKind int

const (
	OutcomeImported OutcomeKind = iota
	OutcomeDuplicate
	OutcomeSkipped
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeImported:
		return "imported"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeError:
		return "error"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the result for one input file. AssetID is the new asset for
// Imported and the existing one for Duplicate; Reason is set for Skipped
// and Error.
type Outcome struct {
	Kind       OutcomeKind
	Index      int
	SourcePath string
	AssetID    string
	Reason     string
}

// BatchReport counts the outcomes of one committed or rolled-back batch.
type BatchReport struct {
	Start, End int
	Imported   int
	Duplicates int
	Skipped    int
	Failed     int
	Links      int
	Copies     int
}

// Job statuses reported to the caller.
const (
	JobCompleted   = "completed"
	JobFailed      = "failed"
	JobInterrupted = "interrupted"
)

// JobReport is the user-facing result of an import run: counts plus one
// reason per failure.
type JobReport struct {
	JobID      string
	Status     string
	Total      int
	Imported   int
	Duplicates int
	Skipped    int
	Failed     int
	Outcomes   []Outcome
	Batches    []BatchReport
	Failures   []string
	Warnings   []string
}

func newJobReport(jobID string, total int) *JobReport {
	return &JobReport{JobID: jobID, Total: total}
}

func (r *JobReport) add(o Outcome, b *BatchReport) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Kind {
	case OutcomeImported:
		r.Imported++
		b.Imported++
	case OutcomeDuplicate:
		r.Duplicates++
		b.Duplicates++
	case OutcomeSkipped:
		r.Skipped++
		b.Skipped++
	case OutcomeError:
		r.Failed++
		b.Failed++
		r.Failures = append(r.Failures, fmt.Sprintf("%s: %s", o.SourcePath, o.Reason))
	}
}

func (r *JobReport) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Summary is a one-line rendering of the counts.
func (r *JobReport) Summary() string {
	return fmt.Sprintf("job %s %s: %d imported, %d duplicate, %d skipped, %d failed (of %d)",
		r.JobID, r.Status, r.Imported, r.Duplicates, r.Skipped, r.Failed, r.Total)
}
