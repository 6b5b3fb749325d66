package testutil

import (
	"path/filepath"
	"testing"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/database"
	"github.com/bizzlechizzle/aupat-sub000/internal/fs"
	"github.com/bizzlechizzle/aupat-sub000/internal/hardware"
	"github.com/bizzlechizzle/aupat-sub000/internal/hashing"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
	"github.com/bizzlechizzle/aupat-sub000/internal/staging"
)

// EnvOptions adjusts the pipeline built by NewEnv. Zero values select the
// defaults.
type EnvOptions struct {
	BatchSize     int
	Workers       int
	ShortIDLength int
	IDs           aupat.IDGenerator
	Retry         *aupat.RetryPolicy
}

// Env is a complete pipeline over temporary directories: a real
// filesystem behind a FaultyFilesystem, an in-memory catalog, SHA-256
// hashing and the built-in hardware rules fed by a FakeExtractor.
type Env struct {
	Root       string
	StagingDir string
	DB         *database.SQLiteDatabase
	FS         *FaultyFilesystem
	Staging    aupat.StagingArea
	Extractor  *FakeExtractor
	Clock      *StubClock
	Service    *aupat.Service
}

func NewEnv(t *testing.T, opts EnvOptions) *Env {
	t.Helper()

	base := t.TempDir()
	env := &Env{
		Root:       filepath.Join(base, "archive"),
		StagingDir: filepath.Join(base, "staging"),
		DB:         NewTestDatabase(t),
		FS:         NewFaultyFilesystem(),
		Extractor:  NewFakeExtractor(),
		Clock:      FixedClock(),
	}

	var err error
	env.Staging, err = staging.NewStagingArea(env.StagingDir, env.FS)
	if err != nil {
		t.Fatalf("creating staging area: %v", err)
	}
	if err := makeDir(env.Root); err != nil {
		t.Fatalf("creating archive root: %v", err)
	}

	hasher, err := hashing.NewHasher(hashing.SHA256, 0)
	if err != nil {
		t.Fatalf("creating hasher: %v", err)
	}
	classifier := hardware.NewClassifier(hardware.DefaultRules(), env.Extractor, env.Extractor, aupat.NewNopLogger())

	ids := opts.IDs
	if ids == nil {
		ids = NewStubIDGenerator()
	}
	retry := aupat.DefaultRetryPolicy()
	if opts.Retry != nil {
		retry = *opts.Retry
	}

	env.Service, err = aupat.NewService(env.DB, env.FS, env.Staging, hasher, classifier,
		fs.NewArchiveLocker(), aupat.NewNopLogger(), env.Clock, ids, aupat.Options{
			ArchiveRoot:   env.Root,
			BatchSize:     opts.BatchSize,
			Workers:       opts.Workers,
			ShortIDLength: opts.ShortIDLength,
			Retry:         retry,
		})
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	return env
}

// Stage writes content to rel under the staging directory and returns the
// absolute path.
func (e *Env) Stage(t *testing.T, rel string, content []byte) string {
	t.Helper()
	return WriteFile(t, filepath.Join(e.StagingDir, rel), content)
}

// Location registers a location.
func (e *Env) Location(t *testing.T, name, region, typ string) *model.Location {
	t.Helper()
	loc, err := e.Service.CreateLocation(name, region, typ, "")
	if err != nil {
		t.Fatalf("CreateLocation(%q) error = %v", name, err)
	}
	return loc
}

// Items files paths under loc.
func Items(loc *model.Location, paths ...string) []aupat.IntakeItem {
	items := make([]aupat.IntakeItem, len(paths))
	for i, p := range paths {
		items[i] = aupat.IntakeItem{SourcePath: p, LocationID: loc.ID}
	}
	return items
}
