package aupat_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
	"github.com/bizzlechizzle/aupat-sub000/internal/testutil"
)

type fakeJournal struct {
	intents  []aupat.UndoEntry
	advanced []int
	failAt   int // entry index whose Advance fails; -1 disables
}

func newFakeJournal() *fakeJournal { return &fakeJournal{failAt: -1} }

func (j *fakeJournal) Intend(e aupat.UndoEntry) error {
	j.intents = append(j.intents, e)
	return nil
}

func (j *fakeJournal) Advance(p *aupat.Placement) error {
	if p.Entry.Index == j.failAt {
		return errors.New("catalog unavailable")
	}
	j.advanced = append(j.advanced, p.Entry.Index)
	return nil
}

// relocationFixture stages n files and plans their relocation into a
// directory created under the undo log, as the importer does.
type relocationFixture struct {
	root        string
	fs          *testutil.FaultyFilesystem
	undo        *aupat.UndoLog
	plan        []*aupat.Placement
	dests       []string
	copyTimeout time.Duration
}

func newRelocationFixture(t *testing.T, n int) *relocationFixture {
	t.Helper()
	root := t.TempDir()
	f := &relocationFixture{root: root, fs: testutil.NewFaultyFilesystem(), undo: aupat.NewUndoLog()}

	dir := filepath.Join(root, "archive", "image")
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := f.fs.Mkdir(dir); err != nil {
		t.Fatal(err)
	}
	f.undo.Append(aupat.UndoEntry{Kind: aupat.UndoMkdir, Path: dir})

	for i := 0; i < n; i++ {
		src := testutil.WriteFile(t, filepath.Join(root, "staging", fmt.Sprintf("f%d.jpg", i)), []byte(fmt.Sprintf("content %d", i)))
		dest := filepath.Join(dir, fmt.Sprintf("loc-%d.jpg", i))
		f.dests = append(f.dests, dest)
		f.plan = append(f.plan, &aupat.Placement{
			Entry:  &model.StagingEntry{JobID: "job", Index: i, SourcePath: src},
			Action: aupat.ActionRelocate,
			Asset:  &model.Asset{ID: fmt.Sprintf("a%d", i), State: model.StatePathAssigned},
			Dest:   dest,
		})
	}
	return f
}

func (f *relocationFixture) engine(retry aupat.RetryPolicy) *aupat.Engine {
	logger := aupat.NewNopLogger()
	return aupat.NewEngine(f.fs, aupat.NewRollbackCoordinator(f.fs, logger), retry, f.copyTimeout, testutil.FixedClock(), logger)
}

func noRetry() aupat.RetryPolicy {
	return aupat.RetryPolicy{MaxAttempts: 1, Multiplier: 1}
}

func TestEngine_RelocateBatch(t *testing.T) {
	f := newRelocationFixture(t, 3)
	f.plan[1].Action = aupat.ActionDuplicate
	f.plan[1].Asset = nil
	f.plan[1].DuplicateOf = "a0"

	journal := newFakeJournal()
	result, err := f.engine(noRetry()).RelocateBatch(context.Background(), f.plan, f.undo, journal)
	if err != nil {
		t.Fatalf("RelocateBatch() error = %v", err)
	}

	if len(result.Relocated) != 2 || len(result.Duplicates) != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.Links != 2 || result.Copies != 0 {
		t.Errorf("links = %d, copies = %d; want 2 hardlinks", result.Links, result.Copies)
	}
	if fmt.Sprint(journal.advanced) != "[0 1 2]" {
		t.Errorf("advanced = %v", journal.advanced)
	}
	if len(journal.intents) != 2 || f.undo.Len() != 3 {
		t.Errorf("intents = %d, undo = %d", len(journal.intents), f.undo.Len())
	}
	for _, p := range result.Relocated {
		if p.Asset.State != model.StateRelocated {
			t.Errorf("asset %s state = %s", p.Asset.ID, p.Asset.State)
		}
		if _, err := os.Stat(p.Dest); err != nil {
			t.Errorf("missing archive file %s", p.Dest)
		}
		if _, err := os.Stat(p.Entry.SourcePath); err != nil {
			t.Errorf("source %s was touched", p.Entry.SourcePath)
		}
	}
}

func TestEngine_RelocateBatch_ForceCopy(t *testing.T) {
	f := newRelocationFixture(t, 2)
	f.fs.ForceCopy = true

	result, err := f.engine(noRetry()).RelocateBatch(context.Background(), f.plan, f.undo, newFakeJournal())
	if err != nil {
		t.Fatalf("RelocateBatch() error = %v", err)
	}
	if result.Copies != 2 || f.fs.Links() != 0 {
		t.Errorf("copies = %d, links = %d", result.Copies, f.fs.Links())
	}
	for _, e := range f.undo.Entries()[1:] {
		if e.Kind != aupat.UndoCopy {
			t.Errorf("undo kind = %s, want copy", e.Kind)
		}
	}
}

func TestEngine_RelocateBatch_FailureRollsBackBatch(t *testing.T) {
	f := newRelocationFixture(t, 4)
	f.fs.FailFrom = 3

	_, err := f.engine(noRetry()).RelocateBatch(context.Background(), f.plan, f.undo, newFakeJournal())
	if !errors.Is(err, testutil.ErrInjected) {
		t.Fatalf("RelocateBatch() error = %v, want ErrInjected", err)
	}

	for _, d := range f.dests {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Errorf("%s survived rollback", d)
		}
	}
	if _, err := os.Stat(filepath.Dir(f.dests[0])); !os.IsNotExist(err) {
		t.Error("directory created in the batch survived rollback")
	}
	if f.undo.Len() != 0 {
		t.Error("undo log not cleared after rollback")
	}
	for _, p := range f.plan {
		if _, err := os.Stat(p.Entry.SourcePath); err != nil {
			t.Errorf("staged file %s lost", p.Entry.SourcePath)
		}
	}
}

func TestEngine_RelocateBatch_JournalFailure(t *testing.T) {
	f := newRelocationFixture(t, 2)
	journal := newFakeJournal()
	journal.failAt = 1

	if _, err := f.engine(noRetry()).RelocateBatch(context.Background(), f.plan, f.undo, journal); err == nil {
		t.Fatal("RelocateBatch() expected error")
	}
	if len(f.fs.Removed()) != 2 {
		t.Errorf("removed = %v, want both relocated files", f.fs.Removed())
	}
}

func TestEngine_RelocateBatch_ExistingDestination(t *testing.T) {
	f := newRelocationFixture(t, 2)
	testutil.WriteFile(t, f.dests[1], []byte("already here"))

	if _, err := f.engine(noRetry()).RelocateBatch(context.Background(), f.plan, f.undo, newFakeJournal()); err == nil {
		t.Fatal("RelocateBatch() expected error")
	}
	data, err := os.ReadFile(f.dests[1])
	if err != nil || string(data) != "already here" {
		t.Error("pre-existing archive file was modified")
	}
	if _, err := os.Stat(f.dests[0]); !os.IsNotExist(err) {
		t.Error("first relocation survived rollback")
	}
}

func TestEngine_RelocateBatch_TransientFailures(t *testing.T) {
	f := newRelocationFixture(t, 2)
	f.fs.TransientFailures = 2

	result, err := f.engine(aupat.DefaultRetryPolicy()).RelocateBatch(context.Background(), f.plan, f.undo, newFakeJournal())
	if err != nil {
		t.Fatalf("RelocateBatch() error = %v", err)
	}
	if len(result.Relocated) != 2 || f.fs.Attempts() != 4 {
		t.Errorf("relocated = %d, attempts = %d", len(result.Relocated), f.fs.Attempts())
	}
}

func TestEngine_RelocateBatch_Cancelled(t *testing.T) {
	f := newRelocationFixture(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	f.fs.AfterRelocate = func(n int, _ string) {
		if n == 2 {
			cancel()
		}
	}

	journal := newFakeJournal()
	result, err := f.engine(noRetry()).RelocateBatch(ctx, f.plan, f.undo, journal)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RelocateBatch() error = %v, want context.Canceled", err)
	}

	if len(result.Relocated) != 2 || fmt.Sprint(journal.advanced) != "[0 1]" {
		t.Errorf("relocated = %d, advanced = %v", len(result.Relocated), journal.advanced)
	}
	for _, d := range f.dests[:2] {
		if _, err := os.Stat(d); err != nil {
			t.Errorf("%s rolled back on cancellation", d)
		}
	}
	if f.undo.Len() != 3 {
		t.Errorf("undo len = %d, want 3 retained for resume", f.undo.Len())
	}
}

func TestEngine_RelocateBatch_CopyTimeout(t *testing.T) {
	f := newRelocationFixture(t, 2)
	f.fs.ForceCopy = true
	f.fs.StallCopies = true
	f.copyTimeout = 20 * time.Millisecond

	_, err := f.engine(noRetry()).RelocateBatch(context.Background(), f.plan, f.undo, newFakeJournal())
	if !errors.Is(err, aupat.ErrFilesystem) || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("RelocateBatch() error = %v, want a timed out FilesystemError", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Error("copy timeout reported as the caller's deadline")
	}
	if f.undo.Len() != 0 {
		t.Errorf("undo len = %d, want batch rolled back", f.undo.Len())
	}
	for _, d := range f.dests {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Errorf("%s exists after a timed out copy", d)
		}
	}
}

func TestEngine_RelocateBatch_CopyInterrupted(t *testing.T) {
	f := newRelocationFixture(t, 2)
	f.fs.ForceCopy = true
	f.fs.StallCopies = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	journal := newFakeJournal()
	_, err := f.engine(noRetry()).RelocateBatch(ctx, f.plan, f.undo, journal)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("RelocateBatch() error = %v, want DeadlineExceeded", err)
	}
	if len(journal.advanced) != 0 {
		t.Errorf("advanced = %v, want none", journal.advanced)
	}
	// The scaffolded directory stays journaled for the resumed run.
	if f.undo.Len() != 1 {
		t.Errorf("undo len = %d, want 1", f.undo.Len())
	}
}
