package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"fsv-go/internal/fsv"
)

// MemoryVault keeps snapshots in memory. It is safe for concurrent use.
type MemoryVault struct {
	name     string
	mu       sync.RWMutex
	objects  map[string][]byte
	versions map[string]int64
}

var _ fsv.Vault = (*MemoryVault)(nil)

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		objects:  make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (m *MemoryVault) PutSnapshot(_ context.Context, storeID, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := objectKey("", storeID, name)
	m.objects[key] = data
	m.versions[key] = version
	return nil
}

func (m *MemoryVault) GetSnapshot(_ context.Context, storeID, name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.objects[objectKey("", storeID, name)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, storeID, name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (m *MemoryVault) SnapshotVersion(_ context.Context, storeID, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[objectKey("", storeID, name)], nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(context.Context) error {
	return nil
}
