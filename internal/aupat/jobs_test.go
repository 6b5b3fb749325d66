package aupat_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
	"github.com/bizzlechizzle/aupat-sub000/internal/testutil"
)

func TestService_GetJob(t *testing.T) {
	env := testutil.NewEnv(t, testutil.EnvOptions{})

	if _, err := env.Service.GetJob("missing"); err == nil {
		t.Error("GetJob() of an unknown job should fail")
	}

	loc := env.Location(t, "Depot", "ny", "factory")
	paths := stageShoot(t, env)
	env.FS.FailFrom = 1
	env.Service.Import(context.Background(), aupat.ImportRequest{JobID: "job1", Items: testutil.Items(loc, paths...)})

	status, err := env.Service.GetJob("job1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if status.Corrupt != nil || status.Checkpoint == nil {
		t.Fatalf("status = %+v", status)
	}
	f, ok := status.Checkpoint.State.(aupat.Failed)
	if !ok || f.Reason == "" {
		t.Errorf("state = %#v, want Failed with a reason", status.Checkpoint.State)
	}
	if len(status.Entries) != 3 {
		t.Errorf("len(Entries) = %d, want 3", len(status.Entries))
	}
	for _, e := range status.Entries {
		if e.State != model.EntryPending {
			t.Errorf("entry %d state = %s, want pending", e.Index, e.State)
		}
	}
}

func TestService_ListJobs(t *testing.T) {
	env := testutil.NewEnv(t, testutil.EnvOptions{})
	loc := env.Location(t, "Depot", "ny", "factory")

	ctx, cancel := context.WithCancel(context.Background())
	env.FS.AfterRelocate = func(int, string) { cancel() }
	env.Service.Import(ctx, aupat.ImportRequest{JobID: "interrupted", Items: testutil.Items(loc, env.Stage(t, "a.jpg", []byte("a")), env.Stage(t, "b.jpg", []byte("b")))})
	env.FS.AfterRelocate = nil

	env.DB.SaveCheckpoint(&model.Checkpoint{Operation: aupat.ImportOperation, JobID: "corrupt", Status: "bogus", Total: 1, UpdatedAt: env.Clock.Now()})

	jobs, err := env.Service.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	byID := make(map[string]*aupat.Checkpoint)
	for _, j := range jobs {
		byID[j.JobID] = j
	}
	if len(byID) != 2 {
		t.Fatalf("jobs = %v, want 2", byID)
	}
	if _, ok := byID["interrupted"].State.(aupat.InProgress); !ok {
		t.Errorf("interrupted state = %#v", byID["interrupted"].State)
	}
	if byID["corrupt"].State != nil {
		t.Errorf("corrupt state = %#v, want nil", byID["corrupt"].State)
	}

	status, err := env.Service.GetJob("corrupt")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if !errors.Is(status.Corrupt, aupat.ErrCheckpointCorruption) {
		t.Errorf("Corrupt = %v", status.Corrupt)
	}
}

func TestService_ResetJob(t *testing.T) {
	t.Run("interrupted job", func(t *testing.T) {
		env := testutil.NewEnv(t, testutil.EnvOptions{})
		loc := env.Location(t, "Depot", "ny", "factory")
		paths := stageShoot(t, env)

		ctx, cancel := context.WithCancel(context.Background())
		env.FS.AfterRelocate = func(int, string) { cancel() }
		if _, err := env.Service.Import(ctx, aupat.ImportRequest{JobID: "job1", Items: testutil.Items(loc, paths...)}); !errors.Is(err, context.Canceled) {
			t.Fatalf("Import() error = %v, want context.Canceled", err)
		}

		if err := env.Service.ResetJob("job1"); err != nil {
			t.Fatalf("ResetJob() error = %v", err)
		}
		assertEmptyDir(t, env.Root)
		for _, p := range paths {
			if _, err := os.Stat(p); err != nil {
				t.Errorf("staged file %s removed by reset", p)
			}
		}
		if _, err := env.Service.GetJob("job1"); err == nil {
			t.Error("job still present after reset")
		}
		if assets, _ := env.Service.ListAssets(loc.ID); len(assets) != 0 {
			t.Errorf("assets left after reset: %d", len(assets))
		}

		// The same files import cleanly under a new job.
		report, err := env.Service.Import(context.Background(), aupat.ImportRequest{Items: testutil.Items(loc, paths...)})
		if err != nil || report.Imported != 2 {
			t.Errorf("Import() after reset = %v, %v", report, err)
		}
	})

	t.Run("corrupt checkpoint", func(t *testing.T) {
		env := testutil.NewEnv(t, testutil.EnvOptions{})
		env.DB.SaveCheckpoint(&model.Checkpoint{Operation: aupat.ImportOperation, JobID: "bad", Status: "failed", Total: 1, UpdatedAt: env.Clock.Now()})

		if err := env.Service.ResetJob("bad"); err != nil {
			t.Fatalf("ResetJob() error = %v", err)
		}
		if jobs, _ := env.Service.ListJobs(); len(jobs) != 0 {
			t.Errorf("jobs after reset = %d", len(jobs))
		}
	})

	t.Run("verification failure", func(t *testing.T) {
		env := testutil.NewEnv(t, testutil.EnvOptions{})
		loc := env.Location(t, "Depot", "ny", "factory")
		paths := stageShoot(t, env)
		env.FS.AfterRelocate = func(n int, dst string) {
			if n == 1 {
				testutil.CorruptFile(t, dst)
			}
		}
		env.Service.Import(context.Background(), aupat.ImportRequest{JobID: "job1", Items: testutil.Items(loc, paths...)})

		if err := env.Service.ResetJob("job1"); err != nil {
			t.Fatalf("ResetJob() error = %v", err)
		}
		if _, err := env.Service.GetJob("job1"); err == nil {
			t.Error("held entries survived reset")
		}
	})
}
