package model

import (
	"database/sql"
	"path/filepath"
	"time"
)

// Location is a geographic place that owns archived media.
type Location struct {
	ID        string // short identifier, scope "location"
	Name      string // display name, used verbatim in the archive path
	Region    string // region code, e.g. "ny"
	Type      string // e.g. "hospital", "factory"
	SubType   string // optional refinement of Type
	CreatedAt time.Time
}

// ArchivePrefix returns {region}-{type}/{name}_{id}, the directory owning
// the location's media relative to the archive root. It is derived from
// the other fields so renaming a location cannot leave it stale.
func (l *Location) ArchivePrefix() string {
	return filepath.Join(l.Region+"-"+l.Type, l.Name+"_"+l.ID)
}

// SubLocation is an optional place scoped under a Location.
type SubLocation struct {
	ID         string // short identifier, scope "sub_location"
	LocationID string
	Name       string
	CreatedAt  time.Time
}

// Asset is a media file tracked by the archive. The pair (Class, SHA256)
// is unique among assets that have not failed verification.
type Asset struct {
	ID            string // short identifier, scope "asset"
	Class         AssetClass
	SHA256        string // full hex digest
	ShortDigest   string
	OriginalPath  string // staging path before import
	ArchivePath   string // relative to the archive root
	Category      HardwareCategory
	Make          sql.NullString
	Model         sql.NullString
	LocationID    string
	SubLocationID sql.NullString
	State         AssetState
	JobID         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StagingEntry is a file registered with an import job and awaiting
// relocation. Index is the entry's position within the job.
type StagingEntry struct {
	JobID         string
	Index         int
	SourcePath    string
	LocationID    string
	SubLocationID sql.NullString
	AssetID       sql.NullString
	State         EntryState
	SHA256        sql.NullString
	DuplicateOf   sql.NullString
	Reason        string
}

// Checkpoint is the persisted progress record of a bulk job.
// Status holds the tag of the checkpoint state union.
type Checkpoint struct {
	Operation  string
	JobID      string
	Status     string
	Total      int
	BatchStart int
	NextIndex  int
	Reason     string
	UpdatedAt  time.Time
}

// UndoRecord is a persisted, reversible filesystem mutation of the
// batch currently in flight for a job.
type UndoRecord struct {
	JobID string
	Seq   int
	Kind  string // "link", "copy" or "mkdir"
	Path  string
}

// Operation is a CLI command that mutated the catalog.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string
	Parameters string
	Status     string
}
