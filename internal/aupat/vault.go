package aupat

import "io"

// Vault stores catalog snapshots off the archive host. Items are keyed by
// archive ID and a name ("catalog", "public_key", ...) and carry a version,
// the id of the last catalog operation they include.
type Vault interface {
	// PutSnapshot stores a named item. size is the number of bytes that
	// will be read from r.
	PutSnapshot(archiveID, name string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes a named item to w.
	GetSnapshot(archiveID, name string, w io.Writer) error

	// SnapshotVersion returns the stored version, or 0 when nothing has been
	// stored under that name.
	SnapshotVersion(archiveID, name string) (int64, error)

	// ValidateSetup verifies that the vault is reachable and usable.
	ValidateSetup() error
}
