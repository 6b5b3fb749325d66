package aupat

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// Options configures a Service.
type Options struct {
	ArchiveRoot   string
	BatchSize     int
	Workers       int
	ShortIDLength int
	Retry         RetryPolicy
	// CopyTimeout bounds each cross-device copy attempt. Zero disables it.
	CopyTimeout time.Duration
}

const (
	DefaultBatchSize = 50
	DefaultWorkers   = 1
)

// Service is the explicit context object of the pipeline: every operation
// runs against the store, tools, clock, lock and logger held here.
type Service struct {
	db          Database
	fsmgr       FilesystemManager
	staging     StagingArea
	hasher      ContentHasher
	classifier  Classifier
	locker      Locker
	logger      Logger
	clock       Clock
	ids         *IdentifierGenerator
	checkpoints *CheckpointManager
	folders     *FolderBuilder
	rollback    *RollbackCoordinator
	engine      *Engine
	verifier    *Verifier
	retry       RetryPolicy
	root        string
	batchSize   int
	workers     int
}

// NewService wires the pipeline components around the given dependencies.
func NewService(db Database, fsmgr FilesystemManager, staging StagingArea, hasher ContentHasher, classifier Classifier, locker Locker, logger Logger, clock Clock, idgen IDGenerator, opts Options) (*Service, error) {
	if opts.ArchiveRoot == "" {
		return nil, fmt.Errorf("archive root is required")
	}
	root, err := filepath.Abs(opts.ArchiveRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving archive root: %w", err)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, err
	}

	ids, err := NewIdentifierGenerator(db, idgen, opts.ShortIDLength, logger)
	if err != nil {
		return nil, err
	}

	rollback := NewRollbackCoordinator(fsmgr, logger)
	return &Service{
		db:          db,
		fsmgr:       fsmgr,
		staging:     staging,
		hasher:      hasher,
		classifier:  classifier,
		locker:      locker,
		logger:      logger,
		clock:       clock,
		ids:         ids,
		checkpoints: NewCheckpointManager(db, ImportOperation, clock, logger),
		folders:     NewFolderBuilder(fsmgr, root, classifier.Categories(), logger),
		rollback:    rollback,
		engine:      NewEngine(fsmgr, rollback, opts.Retry, opts.CopyTimeout, clock, logger),
		verifier:    NewVerifier(hasher, root, logger),
		retry:       opts.Retry,
		root:        root,
		batchSize:   opts.BatchSize,
		workers:     opts.Workers,
	}, nil
}

// ArchiveRoot returns the absolute archive root.
func (s *Service) ArchiveRoot() string { return s.root }

// CreateLocation registers a location under a fresh short identifier.
func (s *Service) CreateLocation(name, region, typ, subType string) (*model.Location, error) {
	loc := &model.Location{Name: name, Region: region, Type: typ, SubType: subType}
	if err := ValidateLocation(loc); err != nil {
		return nil, err
	}

	id, err := s.ids.NewID(ScopeLocation)
	if err != nil {
		return nil, err
	}
	loc.ID = id
	loc.CreatedAt = s.clock.Now()

	if err := s.db.CreateLocation(loc); err != nil {
		return nil, fmt.Errorf("creating location: %w", err)
	}
	s.logger.Info("location created", "id", loc.ID, "name", loc.Name)
	return loc, nil
}

// CreateSubLocation registers a sub-location of locationID.
func (s *Service) CreateSubLocation(locationID, name string) (*model.SubLocation, error) {
	loc, err := s.GetLocation(locationID)
	if err != nil {
		return nil, err
	}

	sub := &model.SubLocation{LocationID: loc.ID, Name: name}
	if err := ValidateSubLocation(sub); err != nil {
		return nil, err
	}

	id, err := s.ids.NewID(ScopeSubLocation)
	if err != nil {
		return nil, err
	}
	sub.ID = id
	sub.CreatedAt = s.clock.Now()

	if err := s.db.CreateSubLocation(sub); err != nil {
		return nil, fmt.Errorf("creating sub-location: %w", err)
	}
	s.logger.Info("sub-location created", "id", sub.ID, "location", loc.ID, "name", sub.Name)
	return sub, nil
}

// GetLocation returns a location or an error when it does not exist.
func (s *Service) GetLocation(id string) (*model.Location, error) {
	loc, err := s.db.FindLocationByID(id)
	if err != nil {
		return nil, fmt.Errorf("finding location: %w", err)
	}
	if loc == nil {
		return nil, fmt.Errorf("location not found: %s", id)
	}
	return loc, nil
}

func (s *Service) ListLocations() ([]*model.Location, error) {
	return s.db.ListLocations()
}

func (s *Service) ListSubLocations(locationID string) ([]*model.SubLocation, error) {
	return s.db.ListSubLocations(locationID)
}

// EnsureStructure scaffolds a location's archive directories under the
// archive lock and returns the directories it created.
func (s *Service) EnsureStructure(locationID string) ([]string, error) {
	loc, err := s.GetLocation(locationID)
	if err != nil {
		return nil, err
	}

	lock, err := s.locker.Acquire(s.root)
	if err != nil {
		return nil, err
	}
	defer s.release(lock)

	return s.folders.EnsureStructure(loc, nil)
}

// LocationDir returns the absolute archive directory of a location.
func (s *Service) LocationDir(loc *model.Location) string {
	return filepath.Join(s.root, LocationDir(loc))
}

// GetAsset returns an asset by id, nil when it does not exist.
func (s *Service) GetAsset(id string) (*model.Asset, error) {
	return s.db.FindAssetByID(id)
}

// ListAssets returns the assets of a location.
func (s *Service) ListAssets(locationID string) ([]*model.Asset, error) {
	return s.db.ListAssetsByLocation(locationID)
}

// AssetPath returns the absolute archive path of an asset.
func (s *Service) AssetPath(a *model.Asset) string {
	return filepath.Join(s.root, a.ArchivePath)
}

// MoveAsset reassigns a finalized asset to another location. This only
// changes the catalog record; the archive file stays where it is.
func (s *Service) MoveAsset(assetID, locationID, subLocationID string) error {
	asset, err := s.db.FindAssetByID(assetID)
	if err != nil {
		return fmt.Errorf("finding asset: %w", err)
	}
	if asset == nil {
		return fmt.Errorf("asset not found: %s", assetID)
	}
	if asset.State != model.StateFinalized {
		return fmt.Errorf("asset %s is %s; only finalized assets can be reassigned", assetID, asset.State)
	}
	if _, err := s.GetLocation(locationID); err != nil {
		return err
	}

	var sub *string
	if subLocationID != "" {
		if err := s.checkSubLocation(locationID, subLocationID); err != nil {
			return err
		}
		sub = &subLocationID
	}
	if err := s.db.ReassignAssetLocation(assetID, locationID, sub); err != nil {
		return fmt.Errorf("reassigning asset: %w", err)
	}
	s.logger.Info("asset reassigned", "asset", assetID, "location", locationID)
	return nil
}

func (s *Service) checkSubLocation(locationID, subLocationID string) error {
	sub, err := s.db.FindSubLocationByID(subLocationID)
	if err != nil {
		return fmt.Errorf("finding sub-location: %w", err)
	}
	if sub == nil {
		return fmt.Errorf("sub-location not found: %s", subLocationID)
	}
	if sub.LocationID != locationID {
		return fmt.Errorf("sub-location %s belongs to location %s, not %s", subLocationID, sub.LocationID, locationID)
	}
	return nil
}

func (s *Service) release(lock ArchiveLock) {
	if err := lock.Release(); err != nil {
		s.logger.Error("releasing archive lock", "error", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
