package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/config"
	"github.com/bizzlechizzle/aupat-sub000/internal/database"
	"github.com/bizzlechizzle/aupat-sub000/internal/encryption"
	"github.com/bizzlechizzle/aupat-sub000/internal/fs"
	"github.com/bizzlechizzle/aupat-sub000/internal/hardware"
	"github.com/bizzlechizzle/aupat-sub000/internal/hashing"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
	"github.com/bizzlechizzle/aupat-sub000/internal/output"
	"github.com/bizzlechizzle/aupat-sub000/internal/staging"
	"github.com/bizzlechizzle/aupat-sub000/internal/vault"
)

// AupatApp is the application layer between the CLI and aupat.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw CLI arguments, and manages the catalog lifecycle on Close.
type AupatApp struct {
	cfg       *config.Config
	db        aupat.Database
	vault     aupat.Vault     // nil when no vault is configured
	encryptor aupat.Encryptor // nil unless catalog.encrypt is set
	fsmgr     aupat.FilesystemManager
	locker    *fs.ArchiveLocker
	service   *aupat.Service
	logger    aupat.Logger
	op        *Operation
	logFile   *os.File
}

// NewAupatApp creates a fully wired AupatApp from the given config.
// operation identifies the CLI command being run (e.g. "Import", "LocationAdd")
// and parameters is recorded with it in the operation history.
// The caller must call Close when done.
func NewAupatApp(cfg *config.Config, operation, parameters string) (*AupatApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	fsmgr := fs.NewOSFilesystemManager(cfg.Staging.Ignore)

	var v aupat.Vault
	if len(cfg.Vaults) > 0 {
		if v, err = vault.NewVaultFromConfig(cfg.Vaults[0]); err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	sa, err := staging.NewStagingAreaFromConfig(cfg.Staging, fsmgr)
	if err != nil {
		return nil, fmt.Errorf("creating staging area: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.ArchiveID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	if v != nil {
		if err := checkCatalogVersion(db, v, cfg.ArchiveID); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := pinHashAlgorithm(db, cfg.Pipeline.HashAlgorithm); err != nil {
		db.Close()
		return nil, err
	}

	var enc aupat.Encryptor
	if cfg.Catalog.Encrypt {
		if enc, err = encryption.NewEncryptorFromConfig(cfg.Encryption); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
	}

	hasher, err := hashing.NewHasher(cfg.Pipeline.HashAlgorithm, cfg.Pipeline.HashTimeout.Duration)
	if err != nil {
		db.Close()
		return nil, err
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(cfg.LogDir, opID, level)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	classifier, err := newClassifier(cfg, logger)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, err
	}

	locker := fs.NewArchiveLocker()
	svc, err := aupat.NewService(db, fsmgr, sa, hasher, classifier, locker, logger, aupat.RealClock{}, aupat.UUIDGenerator{}, aupat.Options{
		ArchiveRoot:   cfg.Archive.Root,
		BatchSize:     cfg.Pipeline.BatchSize,
		Workers:       cfg.Pipeline.Workers,
		ShortIDLength: cfg.Archive.ShortIDLength,
		Retry: aupat.RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay.Duration,
			Multiplier:   cfg.Retry.Multiplier,
			MaxDelay:     cfg.Retry.MaxDelay.Duration,
		},
		CopyTimeout: cfg.Pipeline.CopyTimeout.Duration,
	})
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating service: %w", err)
	}

	return &AupatApp{
		cfg:       cfg,
		db:        db,
		vault:     v,
		encryptor: enc,
		fsmgr:     fsmgr,
		locker:    locker,
		service:   svc,
		logger:    logger,
		op:        NewOperation(operation, parameters),
		logFile:   logFile,
	}, nil
}

// newClassifier builds the hardware classifier from the metadata settings
// and the optional YAML rule table.
func newClassifier(cfg *config.Config, logger aupat.Logger) (*hardware.Classifier, error) {
	rules := hardware.DefaultRules()
	if cfg.Hardware.RulesFile != "" {
		var err error
		if rules, err = hardware.LoadRules(cfg.Hardware.RulesFile); err != nil {
			return nil, fmt.Errorf("loading hardware rules: %w", err)
		}
	}

	timeout := cfg.Metadata.Timeout.Duration
	var still aupat.MetadataExtractor
	switch cfg.Metadata.StillTool {
	case "exiftool":
		still = hardware.NewExiftoolExtractor(cfg.Metadata.ExiftoolPath, timeout)
	case "goexif":
		still = hardware.GoexifExtractor{}
	case "none":
	default:
		return nil, fmt.Errorf("unknown still tool: %s", cfg.Metadata.StillTool)
	}
	video := hardware.NewFFProbeExtractor(cfg.Metadata.FFProbePath, timeout)
	return hardware.NewClassifier(rules, still, video, logger), nil
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for catalog-mutating commands.
func (a *AupatApp) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// ArchiveRoot returns the absolute archive root.
func (a *AupatApp) ArchiveRoot() string { return a.service.ArchiveRoot() }

// Locations

func (a *AupatApp) CreateLocation(name, region, typ, subType string) (*model.Location, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	loc, err := a.service.CreateLocation(name, region, typ, subType)
	return loc, a.op.Fail(err)
}

func (a *AupatApp) CreateSubLocation(locationID, name string) (*model.SubLocation, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	sub, err := a.service.CreateSubLocation(locationID, name)
	return sub, a.op.Fail(err)
}

func (a *AupatApp) GetLocation(id string) (*model.Location, error) {
	return a.service.GetLocation(id)
}

func (a *AupatApp) ListLocations() ([]*model.Location, error) {
	return a.service.ListLocations()
}

func (a *AupatApp) ListSubLocations(locationID string) ([]*model.SubLocation, error) {
	return a.service.ListSubLocations(locationID)
}

// LocationDir returns the archive directory of a location.
func (a *AupatApp) LocationDir(loc *model.Location) string {
	return a.service.LocationDir(loc)
}

// Import

// Import collects the files under paths from the staging area and runs them
// through the pipeline as one job. An empty jobID allocates a new job; an
// existing one continues where it stopped.
func (a *AupatApp) Import(ctx context.Context, paths []string, locationID, subLocationID, jobID string) (*aupat.JobReport, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	items, err := a.service.CollectItems(paths, locationID, subLocationID)
	if err != nil {
		return nil, a.op.Fail(err)
	}

	if a.cfg.Catalog.BackupBeforeImport {
		if _, err := a.BackupCatalog(); err != nil {
			return nil, a.op.Fail(fmt.Errorf("catalog backup before import: %w", err))
		}
	}

	report, err := a.service.Import(ctx, aupat.ImportRequest{JobID: jobID, Items: items})
	return report, a.op.Fail(err)
}

// ResumeJob continues an interrupted or failed import job.
func (a *AupatApp) ResumeJob(ctx context.Context, jobID string) (*aupat.JobReport, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	report, err := a.service.ResumeJob(ctx, jobID)
	return report, a.op.Fail(err)
}

// Jobs

func (a *AupatApp) GetJob(jobID string) (*aupat.JobStatus, error) {
	return a.service.GetJob(jobID)
}

func (a *AupatApp) ListJobs() ([]*aupat.Checkpoint, error) {
	return a.service.ListJobs()
}

func (a *AupatApp) ResetJob(jobID string) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	return a.op.Fail(a.service.ResetJob(jobID))
}

// Assets

func (a *AupatApp) GetAsset(id string) (*model.Asset, error) {
	return a.service.GetAsset(id)
}

func (a *AupatApp) ListAssets(locationID string) ([]*model.Asset, error) {
	return a.service.ListAssets(locationID)
}

// AssetPath returns the absolute archive path of an asset.
func (a *AupatApp) AssetPath(asset *model.Asset) string {
	return a.service.AssetPath(asset)
}

func (a *AupatApp) MoveAsset(assetID, locationID, subLocationID string) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	return a.op.Fail(a.service.MoveAsset(assetID, locationID, subLocationID))
}

// Archive tree

// EnsureStructure creates the location's folder tree and returns the
// directories that did not exist yet.
func (a *AupatApp) EnsureStructure(locationID string) ([]string, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	created, err := a.service.EnsureStructure(locationID)
	return created, a.op.Fail(err)
}

// ArchiveTree renders the folder tree of a location.
func (a *AupatApp) ArchiveTree(locationID string) (string, error) {
	loc, err := a.service.GetLocation(locationID)
	if err != nil {
		return "", err
	}
	return output.RenderTree(a.service.LocationDir(loc))
}

// Lock

// LockStatus returns the archive lock marker, or nil when the archive is unlocked.
func (a *AupatApp) LockStatus() (*fs.LockInfo, error) {
	return a.locker.Status(a.service.ArchiveRoot())
}

// ClearLock removes a stale lock marker left by a crashed process.
func (a *AupatApp) ClearLock() error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	err := a.locker.Clear(a.service.ArchiveRoot())
	if err == nil {
		a.logger.Warn("stale archive lock cleared", "root", a.service.ArchiveRoot())
	}
	return a.op.Fail(err)
}

// History returns the most recent operations.
func (a *AupatApp) History(limit int) ([]*model.Operation, error) {
	return a.db.ListOperations(limit)
}

// Close finalizes the operation and closes all resources.
// For persisted operations with a vault configured: finishes the operation
// record, snapshots the catalog, and uploads it.
// For non-persisted operations: just closes the database.
func (a *AupatApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	var snapshot string
	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status); err != nil {
			keep(fmt.Errorf("finishing operation: %w", err))
		}
		if a.vault != nil {
			path, err := a.writeSnapshot()
			keep(err)
			snapshot = path
		}
	}

	if err := a.db.Close(); err != nil {
		keep(fmt.Errorf("closing database: %w", err))
	}

	if snapshot != "" {
		keep(a.uploadSnapshot(snapshot, a.op.ID))
		os.Remove(snapshot)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
