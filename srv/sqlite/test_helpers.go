package sqlite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestStorage returns a Storage backed by two in-memory databases with
// all migrations applied.
func NewTestStorage(t *testing.T) *Storage {
	db, err := NewMemoryClient()
	require.NoError(t, err)

	kvDb, err := NewMemoryClient()
	require.NoError(t, err)

	storage := NewStorage(db, kvDb)
	require.NoError(t, storage.MigrateUp("test"))

	t.Cleanup(func() {
		storage.Close()
	})
	return storage
}
