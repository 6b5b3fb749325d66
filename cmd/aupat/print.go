package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

func printReport(w io.Writer, r *aupat.JobReport, verbose bool) {
	if r == nil {
		return
	}
	if verbose {
		for _, o := range r.Outcomes {
			line := fmt.Sprintf("%5d  %-9s  %s", o.Index, o.Kind, o.SourcePath)
			if o.AssetID != "" {
				line += "  -> " + o.AssetID
			}
			if o.Reason != "" {
				line += "  (" + o.Reason + ")"
			}
			fmt.Fprintln(w, line)
		}
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "failed: %s\n", f)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	fmt.Fprintln(w, r.Summary())
	switch r.Status {
	case aupat.JobInterrupted, aupat.JobFailed:
		fmt.Fprintf(w, "resume with: aupat import resume %s\n", r.JobID)
	}
}

// describeState renders a checkpoint for job listings.
func describeState(cp *aupat.Checkpoint) string {
	switch s := cp.State.(type) {
	case nil:
		return "corrupt checkpoint (aupat job reset)"
	case aupat.InProgress:
		return fmt.Sprintf("in progress %d/%d", s.Progress.NextIndex, s.Progress.Total)
	case aupat.Failed:
		return fmt.Sprintf("failed at batch %d/%d: %s", s.Progress.BatchStart, s.Progress.Total, s.Reason)
	default:
		return fmt.Sprintf("%s (%d files)", aupat.StatusName(s), cp.Total)
	}
}

func printJob(w io.Writer, status *aupat.JobStatus) {
	fmt.Fprintf(w, "Job:     %s\n", status.JobID)
	switch {
	case status.Corrupt != nil:
		fmt.Fprintf(w, "State:   corrupt: %v\n", status.Corrupt)
	case status.Checkpoint != nil:
		fmt.Fprintf(w, "State:   %s\n", describeState(status.Checkpoint))
		fmt.Fprintf(w, "Updated: %s\n", status.Checkpoint.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	counts := make(map[model.EntryState]int)
	for _, e := range status.Entries {
		counts[e.State]++
	}
	fmt.Fprintf(w, "Entries: %d", len(status.Entries))
	for _, st := range []model.EntryState{model.EntryPending, model.EntryRelocated, model.EntryDuplicate, model.EntrySkipped, model.EntryVerificationFailed} {
		if counts[st] > 0 {
			fmt.Fprintf(w, ", %d %s", counts[st], st)
		}
	}
	fmt.Fprintln(w)
	for _, e := range status.Entries {
		if e.State == model.EntryVerificationFailed {
			fmt.Fprintf(w, "  %d  %s: %s\n", e.Index, e.SourcePath, e.Reason)
		}
	}
}

func printAsset(w io.Writer, a *model.Asset, path string) {
	fmt.Fprintf(w, "ID:       %s\n", a.ID)
	fmt.Fprintf(w, "Class:    %s\n", a.Class)
	fmt.Fprintf(w, "State:    %s\n", a.State)
	fmt.Fprintf(w, "Digest:   %s\n", a.SHA256)
	fmt.Fprintf(w, "Category: %s\n", a.Category)
	if a.Make.Valid {
		fmt.Fprintf(w, "Make:     %s\n", a.Make.String)
	}
	if a.Model.Valid {
		fmt.Fprintf(w, "Model:    %s\n", a.Model.String)
	}
	fmt.Fprintf(w, "Location: %s", a.LocationID)
	if a.SubLocationID.Valid {
		fmt.Fprintf(w, " / %s", a.SubLocationID.String)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Path:     %s\n", path)
	fmt.Fprintf(w, "Original: %s\n", a.OriginalPath)
	fmt.Fprintf(w, "Job:      %s\n", a.JobID)
}

var stdin = bufio.NewReader(os.Stdin)

// readPassphrase prompts on stderr and reads without echo from a terminal,
// or reads one line when stdin is not a terminal.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}

	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
