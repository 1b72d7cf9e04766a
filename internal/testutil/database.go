package testutil

import (
	"testing"

	"fsv-go/internal/database"
)

// NewTestDatabase creates a new in-memory SQLite store migrated to the latest
// schema. The store is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.Store {
	t.Helper()

	store, err := database.NewStore(database.SQLite, database.SQLiteDSN(":memory:"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return store
}
