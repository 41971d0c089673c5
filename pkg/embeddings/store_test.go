package embeddings

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutLoadGet(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, zerolog.Nop())
	require.NoError(t, s.Put("A", []float32{1, 0, 0}))
	require.NoError(t, s.Put("B", []float32{0, 1, 0}))

	reloaded := NewStore(db, zerolog.Nop())
	require.NoError(t, reloaded.Load(context.Background()))

	assert.Equal(t, 2, reloaded.Count())
	assert.Equal(t, 3, reloaded.Dimensions())

	vec, ok := reloaded.Get("A")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0, 0}, vec)

	_, ok = reloaded.Get("missing")
	assert.False(t, ok)
}

func TestLoadDimensionMismatchIsFatal(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, zerolog.Nop())
	require.NoError(t, s.Put("A", []float32{1, 0, 0}))

	// Write a mismatched record behind the store's back, as a corrupted or
	// mixed-generation corpus would.
	other := NewStore(db, zerolog.Nop())
	require.NoError(t, other.Put("B", []float32{1, 0}))

	err := NewStore(db, zerolog.Nop()).Load(context.Background())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestPutRejectsMismatchedDims(t *testing.T) {
	s := NewStore(openTestDB(t), zerolog.Nop())
	require.NoError(t, s.Put("A", []float32{1, 0, 0}))
	err := s.Put("B", []float32{1, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestRejectedPutLeavesNothingOnDisk(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, zerolog.Nop())
	require.NoError(t, s.Put("A", []float32{1, 0, 0, 0}))

	err := s.Put("B", []float32{1, 0, 0})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	// The rejected vector must not persist: a fresh store over the same
	// database loads cleanly with only the valid record.
	reloaded := NewStore(db, zerolog.Nop())
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Equal(t, 1, reloaded.Count())
	assert.Equal(t, 4, reloaded.Dimensions())
	_, ok := reloaded.Get("B")
	assert.False(t, ok)
}

func TestPutRejectsEmpty(t *testing.T) {
	s := NewStore(openTestDB(t), zerolog.Nop())
	assert.ErrorIs(t, s.Put("A", nil), ErrEmptyVector)
	assert.Error(t, s.Put("", []float32{1}))
}

func TestLoadSkipsUnreadableRecords(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, zerolog.Nop())
	require.NoError(t, s.Put("A", []float32{1, 0, 0}))

	// Garbage record: must be skipped, not abort the batch.
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("emb:broken"), []byte{0xff, 0x00, 0x13})
	}))

	reloaded := NewStore(db, zerolog.Nop())
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Equal(t, 1, reloaded.Count())
	_, ok := reloaded.Get("broken")
	assert.False(t, ok)
}

func TestGetAll(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, zerolog.Nop())
	require.NoError(t, s.Put("A", []float32{1, 0}))
	require.NoError(t, s.Put("B", []float32{0, 1}))

	all := s.GetAll()
	assert.Len(t, all, 2)

	subset := s.GetAll("A", "missing")
	assert.Len(t, subset, 1)
	assert.Contains(t, subset, "A")
	assert.NotContains(t, subset, "missing")
}

func TestIDsSorted(t *testing.T) {
	s := NewStore(openTestDB(t), zerolog.Nop())
	require.NoError(t, s.Put("C", []float32{1}))
	require.NoError(t, s.Put("A", []float32{1}))
	require.NoError(t, s.Put("B", []float32{1}))
	assert.Equal(t, []string{"A", "B", "C"}, s.IDs())
}
