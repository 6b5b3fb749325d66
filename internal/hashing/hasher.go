package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/fs"
)

const (
	SHA256 = "sha256"
	BLAKE3 = "blake3"

	// DefaultChunkSize bounds the memory used per file.
	DefaultChunkSize = 64 * 1024

	// DefaultShortLength is the number of hex characters kept for filenames.
	DefaultShortLength = 12
)

// Hasher streams files through a 256-bit digest in fixed-size chunks.
type Hasher struct {
	algorithm string
	chunkSize int
	timeout   time.Duration
	shortLen  int
}

var _ aupat.ContentHasher = (*Hasher)(nil)

// NewHasher creates a hasher for algorithm ("sha256" or "blake3"). A zero
// timeout means no per-file limit beyond the caller's context.
func NewHasher(algorithm string, timeout time.Duration) (*Hasher, error) {
	if _, err := newHash(algorithm); err != nil {
		return nil, err
	}
	if timeout < 0 {
		return nil, fmt.Errorf("hash timeout must not be negative")
	}
	return &Hasher{
		algorithm: algorithm,
		chunkSize: DefaultChunkSize,
		timeout:   timeout,
		shortLen:  DefaultShortLength,
	}, nil
}

func (h *Hasher) Algorithm() string { return h.algorithm }

// HashFile reads path in chunks and fails when the file changes while it
// is being read. The timeout also bounds a read that blocks mid-chunk.
func (h *Hasher) HashFile(ctx context.Context, path string) (aupat.Digest, error) {
	parent := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	f, err := os.Open(path)
	if err != nil {
		return aupat.Digest{}, aupat.NewFilesystemError("open", path, err)
	}
	defer f.Close()

	before, err := f.Stat()
	if err != nil {
		return aupat.Digest{}, aupat.NewFilesystemError("stat", path, err)
	}
	if !before.Mode().IsRegular() {
		return aupat.Digest{}, aupat.NewFilesystemError("hash", path, fmt.Errorf("not a regular file"))
	}

	digest, _ := newHash(h.algorithm)
	if _, err := fs.CopyChunks(ctx, digest, f, h.chunkSize); err != nil {
		switch {
		case parent.Err() != nil:
			return aupat.Digest{}, parent.Err()
		case ctx.Err() != nil:
			return aupat.Digest{}, aupat.NewFilesystemError("hash", path, fmt.Errorf("timed out after %s", h.timeout))
		default:
			return aupat.Digest{}, aupat.NewFilesystemError("read", path, err)
		}
	}

	after, err := os.Stat(path)
	if err != nil {
		return aupat.Digest{}, aupat.NewFilesystemError("stat", path, err)
	}
	if err := validateUnchanged(before, after); err != nil {
		return aupat.Digest{}, aupat.NewFilesystemError("hash", path, fmt.Errorf("file changed while hashing: %w", err))
	}

	full := hex.EncodeToString(digest.Sum(nil))
	return aupat.Digest{Algorithm: h.algorithm, Full: full, Short: full[:h.shortLen]}, nil
}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case SHA256:
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm: %q", algorithm)
	}
}

// validateUnchanged compares the stat taken before reading with the one
// taken after.
func validateUnchanged(before, after os.FileInfo) error {
	if before.Size() != after.Size() {
		return fmt.Errorf("size changed: %d -> %d", before.Size(), after.Size())
	}
	if !before.ModTime().Equal(after.ModTime()) {
		return fmt.Errorf("mtime changed: %v -> %v", before.ModTime(), after.ModTime())
	}
	return nil
}
