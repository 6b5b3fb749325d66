package aupat

import "context"

// Digest is the content hash of a file. Full is the lowercase hex form of a
// 256-bit digest; Short is a fixed-length prefix of it used only in
// human-facing filenames.
type Digest struct {
	Algorithm string
	Full      string
	Short     string
}

// ContentHasher computes file digests in bounded memory.
type ContentHasher interface {
	// HashFile returns a FilesystemError when the file cannot be read
	// within the configured timeout.
	HashFile(ctx context.Context, path string) (Digest, error)
	Algorithm() string
}
