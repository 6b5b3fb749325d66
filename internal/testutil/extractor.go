package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
)

// FakeExtractor answers metadata lookups from a table keyed by file base
// name. Files missing from the table have no tags. When Err is set every
// lookup fails with it.
type FakeExtractor struct {
	Tags map[string]map[string]string
	Err  error

	mu    sync.Mutex
	calls int
}

var _ aupat.MetadataExtractor = (*FakeExtractor)(nil)

func NewFakeExtractor() *FakeExtractor {
	return &FakeExtractor{Tags: make(map[string]map[string]string)}
}

// SetDevice records make and model for files named base.
func (f *FakeExtractor) SetDevice(base, deviceMake, deviceModel string) {
	f.Tags[base] = map[string]string{"make": deviceMake, "model": deviceModel}
}

func (f *FakeExtractor) Extract(ctx context.Context, path string) (map[string]string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, fmt.Errorf("%w: %v", aupat.ErrMetadataToolUnavailable, f.Err)
	}
	return f.Tags[filepath.Base(path)], nil
}

// Calls returns the number of lookups made.
func (f *FakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
