package singlevec

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doodledoc/internal/errs"
	"doodledoc/internal/model"
)

func vec(vals ...float32) []float32 { return vals }

func TestFlatIndexAddAndSearchOrdersByScoreThenInsertion(t *testing.T) {
	idx := NewFlatIndex()
	ctx := context.Background()
	vectors := [][]float32{
		vec(1, 0),
		vec(0, 1),
		vec(1, 0), // ties the first row's score; must come after by insertion order
	}
	meta := []Record{
		{DocID: "a", PageNum: 1, Region: model.RegionFull},
		{DocID: "b", PageNum: 1, Region: model.RegionFull},
		{DocID: "c", PageNum: 1, Region: model.RegionFull},
	}
	require.NoError(t, idx.Add(ctx, vectors, meta))

	hits, err := idx.Search(ctx, vec(1, 0), 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].Record.DocID)
	assert.Equal(t, "c", hits[1].Record.DocID)
	assert.Equal(t, "b", hits[2].Record.DocID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestFlatIndexAddDimensionMismatch(t *testing.T) {
	idx := NewFlatIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, [][]float32{vec(1, 0)}, []Record{{DocID: "a"}}))
	err := idx.Add(ctx, [][]float32{vec(1, 0, 0)}, []Record{{DocID: "b"}})
	require.Error(t, err)
	var dimErr *errs.DimensionMismatchError
	assert.ErrorAs(t, err, &dimErr)
}

func TestFlatIndexSearchDimensionMismatch(t *testing.T) {
	idx := NewFlatIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, [][]float32{vec(1, 0)}, []Record{{DocID: "a"}}))
	_, err := idx.Search(ctx, vec(1, 0, 0), 1)
	require.Error(t, err)
	var qErr *errs.QueryError
	assert.ErrorAs(t, err, &qErr)
}

func TestFlatIndexSearchTopKZeroReturnsEmpty(t *testing.T) {
	idx := NewFlatIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, [][]float32{vec(1, 0)}, []Record{{DocID: "a"}}))
	hits, err := idx.Search(ctx, vec(1, 0), 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFlatIndexSearchTopKExceedsSizeReturnsAllNoPadding(t *testing.T) {
	idx := NewFlatIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, [][]float32{vec(1, 0), vec(0, 1)}, []Record{{DocID: "a"}, {DocID: "b"}}))
	hits, err := idx.Search(ctx, vec(1, 0), 50)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestFlatIndexRemoveByDocIDHidesRowsImmediately(t *testing.T) {
	idx := NewFlatIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, [][]float32{vec(1, 0), vec(0, 1)}, []Record{
		{DocID: "a", PageNum: 1},
		{DocID: "b", PageNum: 1},
	}))
	require.NoError(t, idx.RemoveByDocID(ctx, "a"))

	hits, err := idx.Search(ctx, vec(1, 0), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].Record.DocID)
	assert.Equal(t, 1, idx.Size())
}

func TestFlatIndexSaveLoadRoundTripCompactsTombstones(t *testing.T) {
	idx := NewFlatIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, [][]float32{vec(1, 0), vec(0, 1), vec(0.5, 0.5)}, []Record{
		{DocID: "a", PageNum: 1, Region: model.RegionQ1},
		{DocID: "b", PageNum: 2, Region: model.RegionQ2},
		{DocID: "c", PageNum: 3, Region: model.RegionFull},
	}))
	require.NoError(t, idx.RemoveByDocID(ctx, "b"))

	dir := t.TempDir()
	require.NoError(t, idx.Save(dir))

	_, err := os.Stat(dir + "/vectors.bin")
	require.NoError(t, err)
	_, err = os.Stat(dir + "/metadata.json")
	require.NoError(t, err)

	loaded := NewFlatIndex()
	require.NoError(t, loaded.Load(dir))
	assert.Equal(t, 2, loaded.Size())
	assert.Equal(t, 2, loaded.Dimension())

	hits, err := loaded.Search(ctx, vec(1, 0), 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, "b", h.Record.DocID)
	}
}

func TestFlatIndexEmptyAddIsNoop(t *testing.T) {
	idx := NewFlatIndex()
	require.NoError(t, idx.Add(context.Background(), nil, nil))
	assert.Equal(t, 0, idx.Size())
	assert.Equal(t, 0, idx.Dimension())
}
