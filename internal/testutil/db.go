// Package testutil provides test fixtures for the indexed store.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/skillstore/internal/store/index"
)

// NewDB opens an in-memory indexed store with migrations applied and closes
// it when the test finishes.
func NewDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
