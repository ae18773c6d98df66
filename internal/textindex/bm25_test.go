package textindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBM25SearchRanksByRelevance(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("derivative chain rule integral", Entry{DocID: "a", PageNum: 0})
	idx.Add("chain rule chain rule examples chain", Entry{DocID: "b", PageNum: 0})
	idx.Add("unrelated biology notes about cells", Entry{DocID: "c", PageNum: 0})
	idx.Build()

	hits, err := idx.Search(context.Background(), "chain rule", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].Entry.DocID)
	assert.Equal(t, "a", hits[1].Entry.DocID)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.0)
	}
}

func TestBM25ScoresAreNonIncreasing(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("alpha beta gamma", Entry{DocID: "a"})
	idx.Add("alpha beta", Entry{DocID: "b"})
	idx.Add("alpha", Entry{DocID: "c"})
	idx.Build()

	hits, err := idx.Search(context.Background(), "alpha beta gamma", 10)
	require.NoError(t, err)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Score, hits[i-1].Score)
	}
}

func TestBM25EmptyTextNeverIndexed(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("", Entry{DocID: "a"})
	idx.Add("   ", Entry{DocID: "b"})
	idx.Add("real text here", Entry{DocID: "c"})
	idx.Build()
	assert.Equal(t, 1, idx.Size())

	hits, err := idx.Search(context.Background(), "text", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c", hits[0].Entry.DocID)
}

func TestBM25SearchBeforeBuildReturnsError(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("some text", Entry{DocID: "a"})
	_, err := idx.Search(context.Background(), "text", 10)
	require.Error(t, err)
}

func TestBM25RemoveByDocIDExcludesFromSearch(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("alpha beta", Entry{DocID: "a"})
	idx.Add("alpha beta", Entry{DocID: "b"})
	idx.Build()
	idx.RemoveByDocID("a")
	idx.Build()

	hits, err := idx.Search(context.Background(), "alpha beta", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].Entry.DocID)
}

func TestBM25SaveLoadRoundTrip(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("alpha beta gamma", Entry{DocID: "a", PageNum: 1})
	idx.Add("delta epsilon", Entry{DocID: "b", PageNum: 2})
	idx.Build()

	dir := t.TempDir()
	require.NoError(t, idx.Save(dir))

	loaded := NewBM25Index()
	require.NoError(t, loaded.Load(dir))
	assert.Equal(t, 2, loaded.Size())

	hits, err := loaded.Search(context.Background(), "alpha", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Entry.DocID)
}
