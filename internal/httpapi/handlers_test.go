package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"doodledoc/internal/embed"
	"doodledoc/internal/ingest"
	"doodledoc/internal/metadatastore"
	"doodledoc/internal/multivec"
	"doodledoc/internal/retrieve"
	"doodledoc/internal/singlevec"
	"doodledoc/internal/textindex"
)

type fakeRenderer struct{}

func (fakeRenderer) RenderPage(_ context.Context, _ string, _, _ int) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.Gray{Y: 220})
		}
	}
	return img, nil
}

type fakePageCounter struct{ pages int }

func (f fakePageCounter) PageCount(string) (int, error) { return f.pages, nil }

func buildTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	single := singlevec.NewFlatIndex()
	multi := multivec.NewDiskStore(filepath.Join(t.TempDir(), "colqwen"))
	text := textindex.NewBM25Index()
	meta, err := metadatastore.NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	singleEmbed := embed.NewDeterministicSingle(64, 3)
	multiEmbed := embed.NewDeterministicMulti(32, 3, 4)

	dataDir := t.TempDir()
	coord := ingest.New(fakeRenderer{}, single, multi, text, meta, singleEmbed, multiEmbed, dataDir,
		ingest.WithPageCounter(fakePageCounter{pages: 1}))

	root := t.TempDir()
	pdfPath := filepath.Join(root, "notes.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4\nfake\n%%EOF"), 0o644))

	_, err = coord.Ingest(context.Background(), root, false, nil)
	require.NoError(t, err)

	engine := retrieve.New(single, multi, text, meta, singleEmbed, multiEmbed)

	svc := NewService(coord, engine, meta, single, multi, nil, nil)
	srv := NewServer(svc, nil)

	docs, err := meta.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	return srv, docs[0].DocID
}

func TestHandleHealth(t *testing.T) {
	srv, _ := buildTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleListDocuments(t *testing.T) {
	srv, docID := buildTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	docs := body["documents"].([]any)
	require.Len(t, docs, 1)
	require.Equal(t, docID, docs[0].(map[string]any)["doc_id"])
}

func TestHandleSearchReturnsIndexedPage(t *testing.T) {
	srv, docID := buildTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("sketch_image", "sketch.png")
	require.NoError(t, err)

	sketch := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			sketch.Set(x, y, color.Gray{Y: 220})
		}
	}
	require.NoError(t, png.Encode(part, sketch))
	require.NoError(t, mw.WriteField("top_k", "5"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/search", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	results := body["results"].([]any)
	require.NotEmpty(t, results)
	require.Equal(t, docID, results[0].(map[string]any)["doc_id"])
	require.Contains(t, body, "query_time_ms")
	require.EqualValues(t, 1, body["total_indexed_pages"])
}

func TestHandleReindexDocuments(t *testing.T) {
	srv, docID := buildTestServer(t)

	body, err := json.Marshal(docIDsRequest{DocIDs: []string{docID}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/reindex", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleIngestStatusUnknownJob(t *testing.T) {
	srv, _ := buildTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/ingest/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
