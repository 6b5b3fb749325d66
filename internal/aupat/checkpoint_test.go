package aupat_test

import (
	"errors"
	"testing"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
	"github.com/bizzlechizzle/aupat-sub000/internal/testutil"
)

func newCheckpointManager(t *testing.T) (*aupat.CheckpointManager, aupat.CheckpointStore) {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	return aupat.NewCheckpointManager(db, aupat.ImportOperation, testutil.FixedClock(), aupat.NewNopLogger()), db
}

func TestCheckpointManager_Lifecycle(t *testing.T) {
	m, _ := newCheckpointManager(t)

	cp, fresh, err := m.Begin("job1", 4)
	if err != nil || !fresh {
		t.Fatalf("Begin() = %v, %v; want fresh", fresh, err)
	}
	if loaded, _ := m.Load("job1"); aupat.StatusName(loaded.State) != "pending" {
		t.Errorf("state after Begin = %s, want pending", aupat.StatusName(loaded.State))
	}
	if err := m.Start(cp); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := m.Advance("job1", i); err != nil {
			t.Fatalf("Advance(%d) error = %v", i, err)
		}
	}
	loaded, _ := m.Load("job1")
	if p := loaded.Progress(); p.NextIndex != 2 || p.BatchStart != 0 {
		t.Errorf("progress = %+v, want next 2 in batch 0", p)
	}

	// Begin on an in-progress job resumes it.
	again, fresh, err := m.Begin("job1", 4)
	if err != nil || fresh || again.Progress().NextIndex != 2 {
		t.Errorf("Begin() on in-progress job = %+v, fresh=%v, %v", again, fresh, err)
	}

	if err := m.Advance("job1", 1); err == nil {
		t.Error("Advance() backwards should fail")
	}
	if err := m.Advance("job1", 4); err == nil {
		t.Error("Advance() past total should fail")
	}

	if err := m.Complete("job1"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if loaded, _ := m.Load("job1"); loaded != nil {
		t.Error("checkpoint kept after Complete")
	}
}

func TestCheckpointManager_FailAndResume(t *testing.T) {
	m, store := newCheckpointManager(t)

	cp, _, _ := m.Begin("job1", 10)
	m.Start(cp)
	cp = m.Committed(cp, 5)
	next, err := m.Advanced(cp, 5)
	if err != nil {
		t.Fatalf("Advanced() error = %v", err)
	}
	next, _ = m.Advanced(next, 6)
	if err := store.SaveCheckpoint(m.Record(next)); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}

	if err := m.Fail("job1", "disk full"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if _, _, err := m.Begin("job1", 10); !errors.Is(err, aupat.ErrJobFailed) {
		t.Fatalf("Begin() on failed job error = %v, want ErrJobFailed", err)
	}

	failed, _ := m.Load("job1")
	f, ok := failed.State.(aupat.Failed)
	if !ok || f.Reason != "disk full" {
		t.Fatalf("state = %#v, want Failed(disk full)", failed.State)
	}

	resumed, err := m.Resume("job1")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if f.Progress.BatchStart != 5 {
		t.Errorf("failed batch start = %d, want 5", f.Progress.BatchStart)
	}
	if p := resumed.Progress(); p.BatchStart != 5 || p.NextIndex != 5 {
		t.Errorf("resumed progress = %+v, want restart at 5", p)
	}
	if _, ok := resumed.State.(aupat.InProgress); !ok {
		t.Errorf("resumed state = %#v, want InProgress", resumed.State)
	}
}

func TestCheckpointManager_TransitionsAreValues(t *testing.T) {
	m, _ := newCheckpointManager(t)
	cp, _, _ := m.Begin("job1", 6)

	next, err := m.Advanced(cp, 0)
	if err != nil {
		t.Fatalf("Advanced() error = %v", err)
	}
	if cp.Progress().NextIndex != 0 {
		t.Error("Advanced() mutated its input")
	}
	committed := m.Committed(next, 3)
	if p := committed.Progress(); p.BatchStart != 3 || p.NextIndex != 3 {
		t.Errorf("Committed() progress = %+v", p)
	}
	failed := m.FailedAt(committed, 3, "mismatch")
	if _, err := m.Advanced(failed, 3); err == nil {
		t.Error("Advanced() on a failed checkpoint should fail")
	}
}

func TestCheckpointManager_Resume(t *testing.T) {
	m, _ := newCheckpointManager(t)

	if _, err := m.Resume("missing"); err == nil {
		t.Error("Resume() of an unknown job should fail")
	}
	m.Begin("pending-job", 1)
	if _, err := m.Resume("pending-job"); err == nil {
		t.Error("Resume() of a pending job should fail")
	}
}

func TestDecodeCheckpoint(t *testing.T) {
	valid := func() *model.Checkpoint {
		return &model.Checkpoint{Operation: aupat.ImportOperation, JobID: "j", Status: "in_progress", Total: 10, BatchStart: 4, NextIndex: 6}
	}

	t.Run("round trip", func(t *testing.T) {
		for _, status := range []string{"pending", "in_progress", "completed", "failed"} {
			rec := valid()
			rec.Status = status
			rec.Reason = "r"
			cp, err := aupat.DecodeCheckpoint(rec)
			if err != nil {
				t.Fatalf("DecodeCheckpoint(%s) error = %v", status, err)
			}
			if got := aupat.EncodeCheckpoint(cp).Status; got != status {
				t.Errorf("EncodeCheckpoint() status = %q, want %q", got, status)
			}
		}
	})

	corrupt := []struct {
		name   string
		mutate func(*model.Checkpoint)
	}{
		{name: "unknown status", mutate: func(r *model.Checkpoint) { r.Status = "paused" }},
		{name: "negative total", mutate: func(r *model.Checkpoint) { r.Total = -1 }},
		{name: "next before batch start", mutate: func(r *model.Checkpoint) { r.NextIndex = 3 }},
		{name: "next past total", mutate: func(r *model.Checkpoint) { r.NextIndex = 11 }},
		{name: "failed without reason", mutate: func(r *model.Checkpoint) { r.Status = "failed" }},
	}
	for _, tt := range corrupt {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid()
			tt.mutate(rec)
			_, err := aupat.DecodeCheckpoint(rec)
			if !aupat.IsCheckpointCorruption(err) {
				t.Errorf("DecodeCheckpoint() error = %v, want ErrCheckpointCorruption", err)
			}
		})
	}
}

func TestCheckpointManager_CorruptRecord(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	m := aupat.NewCheckpointManager(db, aupat.ImportOperation, testutil.FixedClock(), aupat.NewNopLogger())

	db.SaveCheckpoint(&model.Checkpoint{Operation: aupat.ImportOperation, JobID: "bad", Status: "bogus", Total: 1})

	if _, _, err := m.Begin("bad", 1); !errors.Is(err, aupat.ErrCheckpointCorruption) {
		t.Errorf("Begin() error = %v, want ErrCheckpointCorruption", err)
	}
	if err := m.Reset("bad"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, fresh, err := m.Begin("bad", 1); err != nil || !fresh {
		t.Errorf("Begin() after Reset = %v, %v; want fresh", fresh, err)
	}
}
