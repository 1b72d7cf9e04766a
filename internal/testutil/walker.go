package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"fsv-go/internal/fsv"
)

// MockEntry is one node of a MockWalker tree.
type MockEntry struct {
	IsDir    bool
	CreateTS time.Time
	ModifyTS time.Time
}

// MockWalker is an in-memory directory tree implementing fsv.Walker. Every
// Walk assigns fresh ids, the same way a real walk does.
type MockWalker struct {
	mu      sync.Mutex
	entries map[string]*MockEntry
	ids     fsv.IDGenerator
	walkErr error
	walks   int
}

var _ fsv.Walker = (*MockWalker)(nil)

// NewMockWalker creates an empty tree.
func NewMockWalker() *MockWalker {
	return &MockWalker{
		entries: make(map[string]*MockEntry),
		ids:     NewStubIDGenerator(),
	}
}

// AddDir adds a directory with both timestamps set to ts.
func (m *MockWalker) AddDir(path string, ts time.Time) {
	m.add(path, true, ts)
}

// AddFile adds a file with both timestamps set to ts.
func (m *MockWalker) AddFile(path string, ts time.Time) {
	m.add(path, false, ts)
}

func (m *MockWalker) add(path string, isDir bool, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[filepath.Clean(path)] = &MockEntry{IsDir: isDir, CreateTS: ts, ModifyTS: ts}
}

// Touch sets the modify time of an existing entry.
func (m *MockWalker) Touch(path string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[filepath.Clean(path)]
	if !ok {
		panic(fmt.Sprintf("testutil: touch of unknown path %s", path))
	}
	e.ModifyTS = ts
}

// Remove deletes path and everything below it.
func (m *MockWalker) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	for p := range m.entries {
		if p == path || isDescendant(path, p) {
			delete(m.entries, p)
		}
	}
}

// FailWith makes every following Walk return err.
func (m *MockWalker) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walkErr = err
}

// Walks returns how many times Walk has been called.
func (m *MockWalker) Walks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.walks
}

// Paths returns every path in the tree, sorted.
func (m *MockWalker) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for p := range m.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *MockWalker) Walk(ctx context.Context, root string) (fsv.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walks++
	if m.walkErr != nil {
		return nil, m.walkErr
	}

	root = filepath.Clean(root)
	snap := make(fsv.Snapshot)
	if e, ok := m.entries[root]; !ok || !e.IsDir {
		return snap, nil
	}
	for p, e := range m.entries {
		if p != root && !isDescendant(root, p) {
			continue
		}
		snap[p] = &fsv.Record{
			ID:       m.ids.New(),
			Path:     p,
			IsDir:    e.IsDir,
			CreateTS: fsv.CanonicalTime(e.CreateTS),
			ModifyTS: fsv.CanonicalTime(e.ModifyTS),
		}
	}
	return snap, nil
}

func isDescendant(ancestor, p string) bool {
	rel, err := filepath.Rel(ancestor, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !startsWithDotDot(rel)
}

func startsWithDotDot(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
