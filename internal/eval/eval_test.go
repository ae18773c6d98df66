package eval

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
	"doodledoc/internal/retrieve"
	"doodledoc/internal/singlevec"
	"doodledoc/internal/textindex"
)

func checkerboardPage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/20+y/20)%2 == 0 {
				img.Set(x, y, color.Gray{Y: 30})
			} else {
				img.Set(x, y, color.Gray{Y: 220})
			}
		}
	}
	return img
}

type fakeLoader struct {
	pages map[string]image.Image
}

func (f fakeLoader) LoadRenderedPage(_ context.Context, docID string, pageNum int) (image.Image, error) {
	key := docID + ":" + itoa(pageNum)
	if img, ok := f.pages[key]; ok {
		return img, nil
	}
	return nil, &notFoundErr{}
}

type notFoundErr struct{}

func (e *notFoundErr) Error() string { return "page not found" }

func buildFixture(t *testing.T) (*retrieve.Engine, *fakeLoader, metadatastore.Store) {
	t.Helper()
	single := singlevec.NewFlatIndex()
	multi := multivec.NewDiskStore(filepath.Join(t.TempDir(), "colqwen"))
	text := textindex.NewBM25Index()
	meta, err := metadatastore.NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	singleEmbed := embed.NewDeterministicSingle(32, 3)
	ctx := context.Background()

	loader := &fakeLoader{pages: map[string]image.Image{}}
	require.NoError(t, meta.AddDocument(ctx, model.Document{DocID: "doc-a", Path: "a.pdf", Sha256: "aaaa", NumPages: 1}))
	require.NoError(t, meta.AddPage(ctx, model.Page{DocID: "doc-a", PageNum: 0, WidthPx: 400, HeightPx: 400}))

	page := checkerboardPage(400, 400)
	loader.pages["doc-a:0"] = page

	vec, err := singleEmbed.EmbedOne(ctx, page)
	require.NoError(t, err)
	require.NoError(t, single.Add(ctx, [][]float32{vec}, []singlevec.Record{{DocID: "doc-a", PageNum: 0, Region: "full"}}))

	engine := retrieve.New(single, multi, text, meta, singleEmbed, nil)
	return engine, loader, meta
}

func TestGenerateQueriesWritesCropsAndManifestEntries(t *testing.T) {
	engine, loader, meta := buildFixture(t)
	_ = engine
	outDir := filepath.Join(t.TempDir(), "pseudo_queries")

	queries, err := GenerateQueries(context.Background(), meta, loader, 5, 42, outDir)
	require.NoError(t, err)
	require.Len(t, queries, 5)
	for _, q := range queries {
		assert.Equal(t, "doc-a", q.DocID)
		assert.Equal(t, 0, q.PageNum)
		assert.FileExists(t, q.CropPath)
	}
}

func TestGenerateQueriesIsDeterministicForSameSeed(t *testing.T) {
	_, loader, meta := buildFixture(t)
	ctx := context.Background()

	a, err := GenerateQueries(ctx, meta, loader, 3, 7, filepath.Join(t.TempDir(), "a"))
	require.NoError(t, err)
	b, err := GenerateQueries(ctx, meta, loader, 3, 7, filepath.Join(t.TempDir(), "b"))
	require.NoError(t, err)

	require.Len(t, a, len(b))
	for i := range a {
		assert.Equal(t, a[i].CropRect, b[i].CropRect)
	}
}

func TestRunComputesRecallAndMRR(t *testing.T) {
	engine, loader, meta := buildFixture(t)
	outDir := filepath.Join(t.TempDir(), "pseudo_queries")
	queries, err := GenerateQueries(context.Background(), meta, loader, 4, 1, outDir)
	require.NoError(t, err)
	require.NotEmpty(t, queries)

	result, err := Run(context.Background(), engine, queries, retrieve.ModeFast, nil)
	require.NoError(t, err)
	assert.Equal(t, len(queries), result.NumQueries)
	assert.GreaterOrEqual(t, result.RecallAtK[10], 0.0)
	assert.LessOrEqual(t, result.RecallAtK[10], 1.0)
	assert.GreaterOrEqual(t, result.MRR, 0.0)
}

func TestCompareRegressionFlagsLargeDrop(t *testing.T) {
	baseline := Result{RecallAtK: map[int]float64{10: 0.90}}
	current := Result{RecallAtK: map[int]float64{10: 0.80}}
	report := CompareRegression(baseline, current, 0.05)
	assert.True(t, report.Regressed)
}

func TestCompareRegressionIgnoresSmallDrop(t *testing.T) {
	baseline := Result{RecallAtK: map[int]float64{10: 0.90}}
	current := Result{RecallAtK: map[int]float64{10: 0.88}}
	report := CompareRegression(baseline, current, 0.05)
	assert.False(t, report.Regressed)
}

func TestSaveAndLoadBaselineRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.json")
	result := Result{Mode: retrieve.ModeFast, NumQueries: 10, RecallAtK: map[int]float64{1: 0.5, 10: 0.9}, MRR: 0.6}
	require.NoError(t, SaveBaseline(path, result))

	loaded, err := LoadBaseline(path)
	require.NoError(t, err)
	assert.Equal(t, result.NumQueries, loaded.NumQueries)
	assert.InDelta(t, result.MRR, loaded.MRR, 1e-9)
}
