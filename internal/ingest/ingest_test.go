package ingest

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doodledoc/internal/embed"
	"doodledoc/internal/metadatastore"
	"doodledoc/internal/multivec"
	"doodledoc/internal/obs"
	"doodledoc/internal/retrieve"
	"doodledoc/internal/singlevec"
	"doodledoc/internal/textindex"
)

// fakeRenderer returns a fixed solid-color bitmap regardless of pdfPath,
// since unit tests have no real PDF to rasterize.
type fakeRenderer struct {
	pages map[int]image.Image
}

func (f *fakeRenderer) RenderPage(_ context.Context, _ string, pageNum, _ int) (image.Image, error) {
	if img, ok := f.pages[pageNum]; ok {
		return img, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.Gray{Y: 220})
		}
	}
	return img, nil
}

func writeTempPDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\nfake\n%%EOF"), 0o644))
	return path
}

// fakePageCounter reports a fixed page count for every path, so tests don't
// need a byte-accurate PDF fixture to exercise the coordinator.
type fakePageCounter struct {
	pages int
}

func (f fakePageCounter) PageCount(string) (int, error) {
	return f.pages, nil
}

// fakeTextExtractor reports a fixed text layer per page number, so tests
// don't need a PDF with a real content stream to exercise C4 wiring.
type fakeTextExtractor struct {
	text map[int]string
}

func (f fakeTextExtractor) ExtractPageText(_ string, pageNum int) (string, error) {
	return f.text[pageNum], nil
}

// flakyEmbedder fails the first N calls to EmbedOne, then delegates to an
// underlying embedder, to exercise the coordinator's single-retry policy.
type flakyEmbedder struct {
	embed.SingleVectorEmbedder
	failures int
	calls    int
}

func (f *flakyEmbedder) EmbedOne(ctx context.Context, img image.Image) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("simulated transient embedding failure")
	}
	return f.SingleVectorEmbedder.EmbedOne(ctx, img)
}

func TestStreamingSHA256MatchesKnownInput(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "hash-*")
	require.NoError(t, err)
	_, err = f.WriteString("hello world")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := os.Open(f.Name())
	require.NoError(t, err)
	defer r.Close()

	sum, err := StreamingSHA256(r)
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", sum)
}

func TestCoordinatorIngestSinglePageSmoke(t *testing.T) {
	root := t.TempDir()
	writeTempPDF(t, root, "notes.pdf")

	single := singlevec.NewFlatIndex()
	multi := multivec.NewDiskStore(filepath.Join(t.TempDir(), "colqwen"))
	text := textindex.NewBM25Index()
	metaPath := filepath.Join(t.TempDir(), "meta.db")
	meta, err := metadatastore.NewSQLiteStore(metaPath)
	require.NoError(t, err)
	defer meta.Close()

	singleEmbed := embed.NewDeterministicSingle(64, 1)
	multiEmbed := embed.NewDeterministicMulti(32, 1, 4)
	dataDir := t.TempDir()

	coord := New(&fakeRenderer{}, single, multi, text, meta, singleEmbed, multiEmbed, dataDir,
		WithPageCounter(fakePageCounter{pages: 1}),
		WithTextExtractor(fakeTextExtractor{text: map[int]string{0: "meeting notes about invoices"}}))

	var progressed []obs.Progress
	sink := obs.ProgressFunc(func(p obs.Progress) { progressed = append(progressed, p) })

	result, err := coord.Ingest(context.Background(), root, false, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocsDone)
	assert.Equal(t, 5, single.Size())
	assert.NotEmpty(t, progressed)
	assert.Equal(t, 1, text.Size())
}

// TestCoordinatorIngestPopulatesTextIndex proves that a real Ingest call,
// not just direct test setup, extracts and builds the text layer into C4
// so a Query{Text: ...} can find the page through the coordinator alone.
func TestCoordinatorIngestPopulatesTextIndex(t *testing.T) {
	root := t.TempDir()
	writeTempPDF(t, root, "notes.pdf")

	single := singlevec.NewFlatIndex()
	multi := multivec.NewDiskStore(filepath.Join(t.TempDir(), "colqwen"))
	text := textindex.NewBM25Index()
	meta, err := metadatastore.NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer meta.Close()

	singleEmbed := embed.NewDeterministicSingle(64, 1)
	multiEmbed := embed.NewDeterministicMulti(32, 1, 4)
	dataDir := t.TempDir()

	coord := New(&fakeRenderer{}, single, multi, text, meta, singleEmbed, multiEmbed, dataDir,
		WithPageCounter(fakePageCounter{pages: 1}),
		WithTextExtractor(fakeTextExtractor{text: map[int]string{0: "quarterly budget reconciliation"}}))

	_, err = coord.Ingest(context.Background(), root, false, obs.NopProgress{})
	require.NoError(t, err)

	sketch := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			sketch.Set(x, y, color.Gray{Y: 220})
		}
	}

	engine := retrieve.New(single, multi, text, meta, singleEmbed, multiEmbed)
	results, _, err := engine.Search(context.Background(), retrieve.Query{Sketch: sketch, Text: "budget", TopK: 5, Mode: retrieve.ModeFast})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

// TestCoordinatorIngestRetriesTransientEmbeddingFailure proves a page whose
// embedder fails once recovers instead of aborting the whole document.
func TestCoordinatorIngestRetriesTransientEmbeddingFailure(t *testing.T) {
	root := t.TempDir()
	writeTempPDF(t, root, "notes.pdf")

	single := singlevec.NewFlatIndex()
	multi := multivec.NewDiskStore(filepath.Join(t.TempDir(), "colqwen"))
	text := textindex.NewBM25Index()
	meta, err := metadatastore.NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer meta.Close()

	flaky := &flakyEmbedder{SingleVectorEmbedder: embed.NewDeterministicSingle(64, 1), failures: 1}
	multiEmbed := embed.NewDeterministicMulti(32, 1, 4)
	dataDir := t.TempDir()

	coord := New(&fakeRenderer{}, single, multi, text, meta, flaky, multiEmbed, dataDir,
		WithPageCounter(fakePageCounter{pages: 1}),
		WithTextExtractor(fakeTextExtractor{}))

	result, err := coord.Ingest(context.Background(), root, false, obs.NopProgress{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocsDone)
	assert.Equal(t, 5, single.Size())

	docs, err := meta.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

// TestCoordinatorIngestRollsBackDocumentOnPersistentFailure proves that a
// document whose embedding never recovers leaves no ghost row in the
// metadata store, per the C5-iff-C2 invariant.
func TestCoordinatorIngestRollsBackDocumentOnPersistentFailure(t *testing.T) {
	root := t.TempDir()
	writeTempPDF(t, root, "notes.pdf")

	single := singlevec.NewFlatIndex()
	multi := multivec.NewDiskStore(filepath.Join(t.TempDir(), "colqwen"))
	text := textindex.NewBM25Index()
	meta, err := metadatastore.NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer meta.Close()

	flaky := &flakyEmbedder{SingleVectorEmbedder: embed.NewDeterministicSingle(64, 1), failures: 2}
	multiEmbed := embed.NewDeterministicMulti(32, 1, 4)
	dataDir := t.TempDir()

	coord := New(&fakeRenderer{}, single, multi, text, meta, flaky, multiEmbed, dataDir,
		WithPageCounter(fakePageCounter{pages: 1}),
		WithTextExtractor(fakeTextExtractor{}))

	_, err = coord.Ingest(context.Background(), root, false, obs.NopProgress{})
	require.Error(t, err)

	docs, err := meta.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 0, single.Size())
}

func TestCoordinatorReindexDocumentPreservesDocID(t *testing.T) {
	root := t.TempDir()
	writeTempPDF(t, root, "notes.pdf")

	single := singlevec.NewFlatIndex()
	multi := multivec.NewDiskStore(filepath.Join(t.TempDir(), "colqwen"))
	text := textindex.NewBM25Index()
	metaPath := filepath.Join(t.TempDir(), "meta.db")
	meta, err := metadatastore.NewSQLiteStore(metaPath)
	require.NoError(t, err)
	defer meta.Close()

	singleEmbed := embed.NewDeterministicSingle(64, 1)
	multiEmbed := embed.NewDeterministicMulti(32, 1, 4)
	dataDir := t.TempDir()

	coord := New(&fakeRenderer{}, single, multi, text, meta, singleEmbed, multiEmbed, dataDir,
		WithPageCounter(fakePageCounter{pages: 1}))

	_, err = coord.Ingest(context.Background(), root, false, obs.NopProgress{})
	require.NoError(t, err)
	require.Equal(t, 5, single.Size())

	docs, err := meta.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	docID := docs[0].DocID

	result, err := coord.ReindexDocument(context.Background(), docID, obs.NopProgress{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocsDone)
	assert.Equal(t, 5, single.Size())

	docsAfter, err := meta.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docsAfter, 1)
	assert.Equal(t, docID, docsAfter[0].DocID)
}
