package aupat

import "github.com/bizzlechizzle/aupat-sub000/internal/model"

// Database is the catalog store. Uniqueness checks for identifiers and
// content digests are atomic check-and-insert operations. Find methods
// return nil, nil when nothing matches.
type Database interface {
	// Identifiers

	// ReserveIdentifier records shortID in scope. It returns false, without
	// error, when the identifier is already taken.
	ReserveIdentifier(scope, shortID string) (bool, error)

	// Locations

	CreateLocation(loc *model.Location) error
	FindLocationByID(id string) (*model.Location, error)
	ListLocations() ([]*model.Location, error)
	CreateSubLocation(sub *model.SubLocation) error
	FindSubLocationByID(id string) (*model.SubLocation, error)
	ListSubLocations(locationID string) ([]*model.SubLocation, error)

	// Assets

	// FindAssetByDigest returns the asset of class holding the full digest,
	// ignoring assets that failed verification.
	FindAssetByDigest(class model.AssetClass, sha256 string) (*model.Asset, error)
	FindAssetByID(id string) (*model.Asset, error)
	ListAssetsByLocation(locationID string) ([]*model.Asset, error)

	// ListAssetsByJob returns the job's assets in any of the given states,
	// ordered by creation.
	ListAssetsByJob(jobID string, states ...model.AssetState) ([]*model.Asset, error)

	// ReassignAssetLocation moves a finalized asset to another location
	// record. The archive file is not touched.
	ReassignAssetLocation(assetID, locationID string, subLocationID *string) error

	// Staging entries

	// RegisterJob deletes leftover entries of jobID and inserts entries,
	// all in one transaction.
	RegisterJob(jobID string, entries []*model.StagingEntry) error
	ListStagingEntries(jobID string) ([]*model.StagingEntry, error)

	// Checkpoints

	FindCheckpoint(operation, jobID string) (*model.Checkpoint, error)
	ListCheckpoints(operation string) ([]*model.Checkpoint, error)
	SaveCheckpoint(cp *model.Checkpoint) error
	DeleteCheckpoint(operation, jobID string) error

	// Undo journal

	AppendUndoRecords(jobID string, records []*model.UndoRecord) error
	ListUndoRecords(jobID string) ([]*model.UndoRecord, error)

	// DeleteUndoRecords drops the journaled mutations of jobID at paths.
	DeleteUndoRecords(jobID string, paths []string) error

	// Batch units of work

	// AdvanceEntry records the outcome of one staging entry and the
	// checkpoint advance past it in a single transaction. When work.Asset is
	// set it is inserted; a digest conflict returns ErrDuplicateContent and
	// nothing is written.
	AdvanceEntry(work *EntryWork) error

	// FinalizeBatch marks verified assets FINALIZED, deletes their staging
	// entries and those of duplicates, clears the undo journal and saves the
	// checkpoint, in one transaction.
	FinalizeBatch(fin *BatchFinalization) error

	// FailBatch deletes the batch's relocated assets, flags mismatched ones,
	// resets entries for reprocessing, clears the undo journal and saves the
	// failed checkpoint, in one transaction.
	FailBatch(fail *BatchFailure) error

	// UpdateAssetStates moves assets from one state to another.
	UpdateAssetStates(ids []string, from, to model.AssetState) error

	// PurgeJob removes the job's checkpoint, entries, undo journal and every
	// asset of the job that is not FINALIZED.
	PurgeJob(operation, jobID string) error

	// Settings

	GetSetting(key string) (string, bool, error)
	PutSetting(key, value string) error

	// Operation history

	CreateOperation(operation, parameters string) (*model.Operation, error)
	FinishOperation(id int64, status string) error
	ListOperations(limit int) ([]*model.Operation, error)
	MaxOperationID() (int64, error)

	// CheckMigrations verifies the schema is current.
	CheckMigrations() error

	// BackupTo writes a consistent copy of the catalog to destPath.
	BackupTo(destPath string) error

	Close() error
}

// EntryWork is the unit of work for one processed staging entry.
type EntryWork struct {
	Entry      *model.StagingEntry
	Asset      *model.Asset // nil unless the entry was relocated
	Checkpoint *model.Checkpoint
}

// BatchFinalization is the unit of work that commits a verified batch.
type BatchFinalization struct {
	JobID string
	// AssetIDs are the VERIFIED assets to finalize.
	AssetIDs []string
	// EntryIndexes are the staging entries to delete.
	EntryIndexes []int
	Checkpoint   *model.Checkpoint
}

// BatchFailure is the unit of work that records a rolled-back batch.
type BatchFailure struct {
	JobID          string
	DeleteAssetIDs []string
	// FlagAssetIDs are moved to VERIFICATION_FAILED.
	FlagAssetIDs []string
	// ResetIndexes are entries returned to pending for reprocessing.
	ResetIndexes []int
	// FlagReasons maps entries to mark verification_failed to their reason.
	FlagReasons map[int]string
	Checkpoint  *model.Checkpoint
}
