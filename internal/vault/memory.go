package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
)

type snapshot struct {
	data    []byte
	version int64
}

// MemoryVault keeps snapshots in memory. Safe for concurrent use; meant
// for tests and dry runs.
type MemoryVault struct {
	name  string
	items map[string]snapshot // "archiveID/name"
	mu    sync.RWMutex
}

func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{name: name, items: make(map[string]snapshot)}
}

func itemKey(archiveID, name string) string {
	return archiveID + "/" + name
}

func (m *MemoryVault) PutSnapshot(archiveID, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[itemKey(archiveID, name)] = snapshot{data: data, version: version}
	return nil
}

func (m *MemoryVault) GetSnapshot(archiveID, name string, w io.Writer) error {
	m.mu.RLock()
	item, ok := m.items[itemKey(archiveID, name)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s not found for archive %s in vault %s", name, archiveID, m.name)
	}
	if _, err := io.Copy(w, bytes.NewReader(item.data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (m *MemoryVault) SnapshotVersion(archiveID, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.items[itemKey(archiveID, name)].version, nil
}

func (m *MemoryVault) ValidateSetup() error { return nil }

var _ aupat.Vault = (*MemoryVault)(nil)
