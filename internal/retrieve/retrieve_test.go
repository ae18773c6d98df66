package retrieve

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doodledoc/internal/embed"
	"doodledoc/internal/metadatastore"
	"doodledoc/internal/model"
	"doodledoc/internal/multivec"
	"doodledoc/internal/singlevec"
	"doodledoc/internal/textindex"
)

func solidImage(v uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestAggregateToPageTakesMaxAcrossRegions(t *testing.T) {
	hits := []singlevec.Hit{
		{Record: singlevec.Record{DocID: "d1", PageNum: 0, Region: "full"}, Score: 0.5},
		{Record: singlevec.Record{DocID: "d1", PageNum: 0, Region: "q1"}, Score: 0.9},
		{Record: singlevec.Record{DocID: "d1", PageNum: 0, Region: "q2"}, Score: 0.1},
		{Record: singlevec.Record{DocID: "d2", PageNum: 3, Region: "full"}, Score: 0.3},
	}
	scores := AggregateToPage(hits)
	assert.InDelta(t, 0.9, scores[pageKey{docID: "d1", pageNum: 0}], 1e-9)
	assert.InDelta(t, 0.3, scores[pageKey{docID: "d2", pageNum: 3}], 1e-9)
}

func TestFuseRRFSingleListPreservesOrder(t *testing.T) {
	list := []pageKey{{docID: "a", pageNum: 0}, {docID: "b", pageNum: 1}, {docID: "c", pageNum: 2}}
	fused := fuseRRF(list)
	assert.Equal(t, list, fused)
}

func TestFuseRRFBoostsAgreementAcrossLists(t *testing.T) {
	visual := []pageKey{{docID: "a", pageNum: 0}, {docID: "b", pageNum: 0}, {docID: "c", pageNum: 0}}
	text := []pageKey{{docID: "b", pageNum: 0}, {docID: "a", pageNum: 0}, {docID: "d", pageNum: 0}}
	fused := fuseRRF(visual, text)
	// "a" and "b" each rank in both lists; "c" and "d" rank in only one.
	// Whichever of a/b has the better combined rank comes first, but both
	// must outrank c and d.
	positions := map[string]int{}
	for i, k := range fused {
		positions[k.docID] = i
	}
	assert.Less(t, positions["a"], positions["c"])
	assert.Less(t, positions["b"], positions["d"])
}

func setupEngine(t *testing.T) (*Engine, embed.SingleVectorEmbedder, embed.MultiVectorEmbedder) {
	t.Helper()
	single := singlevec.NewFlatIndex()
	multi := multivec.NewDiskStore(filepath.Join(t.TempDir(), "colqwen"))
	text := textindex.NewBM25Index()
	meta, err := metadatastore.NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	singleEmbed := embed.NewDeterministicSingle(32, 7)
	multiEmbed := embed.NewDeterministicMulti(16, 7, 4)

	ctx := context.Background()
	require.NoError(t, meta.AddDocument(ctx, model.Document{DocID: "doc-1", Path: "notes.pdf", Sha256: "deadbeef", NumPages: 1}))

	img := solidImage(200)
	vec, err := singleEmbed.EmbedOne(ctx, img)
	require.NoError(t, err)
	require.NoError(t, single.Add(ctx, [][]float32{vec}, []singlevec.Record{{DocID: "doc-1", PageNum: 0, Region: "full"}}))

	matrix, err := multiEmbed.EmbedOne(ctx, img)
	require.NoError(t, err)
	require.NoError(t, multi.Put(ctx, "doc-1", 0, matrix))

	text.Add("handwritten derivative notes", textindex.Entry{DocID: "doc-1", PageNum: 0})
	text.Build()

	e := New(single, multi, text, meta, singleEmbed, multiEmbed)
	return e, singleEmbed, multiEmbed
}

func TestEngineSearchFastReturnsIndexedPage(t *testing.T) {
	e, _, _ := setupEngine(t)
	results, _, err := e.Search(context.Background(), Query{Sketch: solidImage(200), TopK: 5, Mode: ModeFast})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-1", results[0].DocID)
	assert.Equal(t, StageFast, results[0].Stage)
}

func TestEngineSearchAccurateRerranksWithMaxSim(t *testing.T) {
	e, _, _ := setupEngine(t)
	results, _, err := e.Search(context.Background(), Query{Sketch: solidImage(200), TopK: 5, Mode: ModeAccurate})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-1", results[0].DocID)
	assert.Equal(t, StageReranked, results[0].Stage)
}

func TestEngineSearchRequiresSketch(t *testing.T) {
	e, _, _ := setupEngine(t)
	_, _, err := e.Search(context.Background(), Query{TopK: 5})
	assert.Error(t, err)
}

func TestEngineSearchTopKZeroReturnsEmpty(t *testing.T) {
	e, _, _ := setupEngine(t)
	results, _, err := e.Search(context.Background(), Query{Sketch: solidImage(200), TopK: 0})
	require.NoError(t, err)
	assert.Empty(t, results)
}
