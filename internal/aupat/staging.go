package aupat

// StagingArea is the transient holding directory for files awaiting import.
// The pipeline only deletes from it after a batch has been verified.
type StagingArea interface {
	// Root returns the absolute staging directory.
	Root() string

	// Contains reports whether path lies inside the staging directory.
	Contains(path string) bool

	// Remove deletes a staged original. A missing file is not an error.
	Remove(path string) error

	// Prune removes now-empty directories starting at each given directory
	// and walking up towards the root. The root itself is kept.
	Prune(dirs []string) error
}
