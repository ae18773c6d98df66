package multivec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doodledoc/internal/errs"
)

func TestDiskStorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewDiskStore(t.TempDir())
	matrix := Matrix{{1, 2, 3}, {4, 5, 6}}
	require.NoError(t, store.Put(ctx, "doc-1", 0, matrix))

	got, err := store.Get(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.Equal(t, matrix, got)

	has, err := store.Has(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDiskStoreGetMissingReturnsMissingArtifactError(t *testing.T) {
	store := NewDiskStore(t.TempDir())
	_, err := store.Get(context.Background(), "nope", 0)
	require.Error(t, err)
	var missing *errs.MissingArtifactError
	assert.ErrorAs(t, err, &missing)
}

func TestDiskStoreRemoveByDocID(t *testing.T) {
	ctx := context.Background()
	store := NewDiskStore(t.TempDir())
	require.NoError(t, store.Put(ctx, "doc-1", 0, Matrix{{1, 2}}))
	require.NoError(t, store.Put(ctx, "doc-1", 1, Matrix{{3, 4}}))
	require.NoError(t, store.Put(ctx, "doc-2", 0, Matrix{{5, 6}}))

	require.NoError(t, store.RemoveByDocID(ctx, "doc-1"))

	keys, err := store.AllKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "doc-2", keys[0].DocID)

	has, _ := store.Has(ctx, "doc-1", 0)
	assert.False(t, has)
}

func TestDiskStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewDiskStore(dir)
	require.NoError(t, store.Put(ctx, "doc-1", 0, Matrix{{1, 2}, {3, 4}}))
	require.NoError(t, store.Put(ctx, "doc-1", 1, Matrix{{5, 6}}))
	require.NoError(t, store.Save(dir))

	loaded := NewDiskStore(dir)
	require.NoError(t, loaded.Load(dir))

	got, err := loaded.Get(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.Equal(t, Matrix{{1, 2}, {3, 4}}, got)

	keys, err := loaded.AllKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestMaxSimSumsPerQueryPatchMaxima(t *testing.T) {
	query := Matrix{{1, 0}, {0, 1}}
	candidate := Matrix{{1, 0}, {0.5, 0.5}, {0, 1}}
	// patch 0 best match: (1,0)->(1,0) = 1.0
	// patch 1 best match: (0,1)->(0,1) = 1.0
	score := MaxSim(query, candidate)
	assert.InDelta(t, 2.0, score, 1e-9)
}

func TestMaxSimEmptyCandidateIsZero(t *testing.T) {
	query := Matrix{{1, 0}}
	score := MaxSim(query, Matrix{})
	assert.Equal(t, 0.0, score)
}
