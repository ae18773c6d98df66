// Package ingest implements the ingestion coordinator (C6): discover PDFs
// under a root path, dedupe against the metadata store by content hash,
// then for each new document render, normalize, embed, and persist every
// page across C2/C3/C4/C5, reporting progress as it goes.
package ingest

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"doodledoc/internal/embed"
	"doodledoc/internal/errs"
	"doodledoc/internal/logging"
	"doodledoc/internal/metadatastore"
	"doodledoc/internal/model"
	"doodledoc/internal/multivec"
	"doodledoc/internal/obs"
	"doodledoc/internal/prep"
	"doodledoc/internal/singlevec"
	"doodledoc/internal/textindex"
)

// Result is the final outcome of an ingest run.
type Result struct {
	DocsDone   int
	DocsTotal  int
	PagesDone  int
	PagesTotal int
	Status     obs.Status
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) Option { return func(c *Coordinator) { c.log = l } }

// WithMetrics overrides the default no-op metrics sink.
func WithMetrics(m obs.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// WithMaxPagesPerDoc bounds how many pages of any single document are
// ingested.
func WithMaxPagesPerDoc(n int) Option { return func(c *Coordinator) { c.maxPagesPerDoc = n } }

// WithRenderDPI sets the rasterization DPI passed to the page renderer.
func WithRenderDPI(dpi int) Option { return func(c *Coordinator) { c.renderDPI = dpi } }

// WithRegionOverlap sets the quadrant overlap fraction used by C1.
func WithRegionOverlap(o float64) Option { return func(c *Coordinator) { c.regionOverlap = o } }

// WithPrepParams overrides the CLAHE parameters used by C1.
func WithPrepParams(p prep.Params) Option { return func(c *Coordinator) { c.prepParams = p } }

// WithMaxConcurrentDocs bounds how many documents are rendered and embedded
// in parallel during Ingest. Pages within a document are still processed
// sequentially so per-page error handling and progress reporting stay
// simple; only the outer per-document loop is parallelized.
func WithMaxConcurrentDocs(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxConcurrentDocs = n
		}
	}
}

// WithMultiVector enables or disables the C3 write path.
func WithMultiVector(enabled bool) Option { return func(c *Coordinator) { c.multiVectorEnabled = enabled } }

// WithPageCounter overrides the default pdfcpu-backed page counter, mainly
// for injecting a fake in tests.
func WithPageCounter(p PDFPageCounter) Option { return func(c *Coordinator) { c.pageCounter = p } }

// WithTextExtractor overrides the default pdfcpu-backed text layer
// extractor, mainly for injecting a fake in tests.
func WithTextExtractor(t PDFTextExtractor) Option {
	return func(c *Coordinator) { c.textExtractor = t }
}

// WithRenderedPageWriter overrides where rendered page bitmaps are written.
// Defaults to local disk under dataDir/rendered/, matching spec's on-disk
// layout; an object-store-backed writer (internal/objectstore.PageLoader)
// can be substituted for deployments that don't want page images on local
// disk.
func WithRenderedPageWriter(w RenderedPageWriter) Option {
	return func(c *Coordinator) { c.pageWriter = w }
}

// RenderedPageWriter persists a rendered page bitmap so it can later be
// retrieved for thumbnail serving and accurate-mode rerank fallback.
type RenderedPageWriter interface {
	PutRenderedPage(ctx context.Context, docID string, pageNum int, img image.Image) error
}

// localPageWriter is the default RenderedPageWriter: plain files under
// dataDir/rendered/{doc_id}/{page_num}.png, per spec's on-disk layout table.
type localPageWriter struct {
	dataDir string
}

func (w localPageWriter) PutRenderedPage(_ context.Context, docID string, pageNum int, img image.Image) error {
	dir := filepath.Join(w.dataDir, "rendered", docID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, pageFilename(pageNum)))
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// Coordinator drives a single ingest job against a fixed set of backing
// stores, constructed explicitly rather than reached through a global
// singleton.
type Coordinator struct {
	renderer    PageRenderer
	single      singlevec.Index
	multi       multivec.Store
	text        textindex.Index
	meta        metadatastore.Store
	singleEmbed embed.SingleVectorEmbedder
	multiEmbed  embed.MultiVectorEmbedder
	dataDir     string

	maxPagesPerDoc     int
	renderDPI          int
	regionOverlap      float64
	prepParams         prep.Params
	multiVectorEnabled bool
	pageCounter        PDFPageCounter
	textExtractor      PDFTextExtractor
	pageWriter         RenderedPageWriter
	maxConcurrentDocs  int

	log     logging.Logger
	metrics obs.Metrics
}

// New constructs a Coordinator. dataDir is the root data directory under
// which rendered/, index/, and colqwen/ are written, per spec's on-disk
// layout.
func New(
	renderer PageRenderer,
	single singlevec.Index,
	multi multivec.Store,
	text textindex.Index,
	meta metadatastore.Store,
	singleEmbed embed.SingleVectorEmbedder,
	multiEmbed embed.MultiVectorEmbedder,
	dataDir string,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		renderer:           renderer,
		single:             single,
		multi:              multi,
		text:               text,
		meta:               meta,
		singleEmbed:        singleEmbed,
		multiEmbed:         multiEmbed,
		dataDir:            dataDir,
		maxPagesPerDoc:     500,
		renderDPI:          150,
		regionOverlap:      0.10,
		prepParams:         prep.DefaultParams(),
		multiVectorEnabled: true,
		pageCounter:        PDFCPUCounter{},
		textExtractor:      PDFCPUTextExtractor{},
		pageWriter:         localPageWriter{dataDir: dataDir},
		maxConcurrentDocs:  4,
		log:                logging.Noop{},
		metrics:            obs.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// pdfFile is one discovered file with its content hash.
type pdfFile struct {
	path   string
	sha256 string
}

// Ingest runs discovery, dedupe, and per-document processing against
// rootPath, reporting progress to sink as it goes.
func (c *Coordinator) Ingest(ctx context.Context, rootPath string, force bool, sink obs.ProgressSink) (Result, error) {
	if sink == nil {
		sink = obs.NopProgress{}
	}
	if c.renderer == nil {
		return Result{}, &errs.InputError{Msg: "no page renderer configured"}
	}
	info, err := os.Stat(rootPath)
	if err != nil || !info.IsDir() {
		return Result{}, &errs.InputError{Msg: "root_path is not a readable directory", Err: err}
	}

	sink.Notify(obs.Progress{Status: obs.StatusDiscovering})
	discovered, err := discoverPDFs(rootPath)
	if err != nil {
		return Result{}, &errs.InputError{Msg: "failed to walk root_path", Err: err}
	}

	var toProcess []pdfFile
	for _, f := range discovered {
		if !force {
			if _, err := c.meta.GetDocumentByHash(ctx, f.sha256); err == nil {
				continue // already indexed; incremental no-op
			}
		}
		toProcess = append(toProcess, f)
	}

	pagesTotal := 0
	pageCounts := make([]int, len(toProcess))
	for i, f := range toProcess {
		n, err := c.pageCounter.PageCount(f.path)
		if err != nil {
			c.log.Error("failed to count pages", map[string]any{"path": f.path, "error": err.Error()})
			continue
		}
		if n > c.maxPagesPerDoc {
			n = c.maxPagesPerDoc
		}
		pageCounts[i] = n
		pagesTotal += n
	}

	result := Result{DocsTotal: len(toProcess), PagesTotal: pagesTotal, Status: obs.StatusIndexing}
	sink.Notify(obs.Progress{Status: obs.StatusIndexing, DocsTotal: result.DocsTotal, PagesTotal: result.PagesTotal})

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrentDocs)
	for i, f := range toProcess {
		f, numPages := f, pageCounts[i]
		g.Go(func() error {
			var local Result
			if err := c.processDocument(gctx, f, numPages, &local, sink); err != nil {
				return err
			}

			mu.Lock()
			result.DocsDone++
			result.PagesDone += local.PagesDone
			sink.Notify(obs.Progress{
				Status: obs.StatusIndexing, DocsDone: result.DocsDone, DocsTotal: result.DocsTotal,
				PagesDone: result.PagesDone, PagesTotal: result.PagesTotal, CurrentDoc: f.path,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	if err := c.persist(); err != nil {
		return result, err
	}
	result.Status = obs.StatusCompleted
	sink.Notify(obs.Progress{
		Status: obs.StatusCompleted, DocsDone: result.DocsDone, DocsTotal: result.DocsTotal,
		PagesDone: result.PagesDone, PagesTotal: result.PagesTotal,
	})
	return result, nil
}

func (c *Coordinator) processDocument(ctx context.Context, f pdfFile, numPages int, result *Result, sink obs.ProgressSink) error {
	return c.processDocumentWithID(ctx, model.NewDocID(), f, numPages, result, sink)
}

// ReindexDocument re-processes a single already-known document: it removes
// every C2/C3/C4/C5 row belonging to docID, then re-renders, re-embeds, and
// re-persists it from the same PDF path under the same doc_id. Unlike a
// fresh Ingest, identity is preserved rather than allocated, so callers
// referencing docID elsewhere (bookmarks, prior search results) keep
// pointing at the same document after reindexing.
func (c *Coordinator) ReindexDocument(ctx context.Context, docID string, sink obs.ProgressSink) (Result, error) {
	if sink == nil {
		sink = obs.NopProgress{}
	}
	doc, err := c.meta.GetDocument(ctx, docID)
	if err != nil {
		return Result{}, &errs.InputError{Msg: "unknown document", Err: err}
	}

	numPages, err := c.pageCounter.PageCount(doc.Path)
	if err != nil {
		return Result{}, &errs.InputError{Msg: "failed to count pages", Err: err}
	}
	if numPages > c.maxPagesPerDoc {
		numPages = c.maxPagesPerDoc
	}

	if err := c.single.RemoveByDocID(ctx, docID); err != nil {
		return Result{}, err
	}
	if err := c.multi.RemoveByDocID(ctx, docID); err != nil {
		return Result{}, err
	}
	c.text.RemoveByDocID(docID)
	if err := c.meta.DeleteDocument(ctx, docID); err != nil {
		return Result{}, err
	}

	result := Result{DocsTotal: 1, PagesTotal: numPages, Status: obs.StatusIndexing}
	f := pdfFile{path: doc.Path, sha256: doc.Sha256}
	if err := c.processDocumentWithID(ctx, docID, f, numPages, &result, sink); err != nil {
		return result, err
	}
	result.DocsDone = 1

	if err := c.persist(); err != nil {
		return result, err
	}
	result.Status = obs.StatusCompleted
	sink.Notify(obs.Progress{Status: obs.StatusCompleted, DocsDone: 1, DocsTotal: 1, PagesDone: result.PagesDone, PagesTotal: result.PagesTotal})
	return result, nil
}

func (c *Coordinator) processDocumentWithID(ctx context.Context, docID string, f pdfFile, numPages int, result *Result, sink obs.ProgressSink) error {
	doc := model.Document{DocID: docID, Path: f.path, Sha256: f.sha256, ModifiedTime: time.Now().UTC(), NumPages: numPages}
	if err := c.meta.AddDocument(ctx, doc); err != nil {
		return &errs.InputError{Msg: "failed to record document", Err: err}
	}

	for p := 0; p < numPages; p++ {
		if err := c.processPage(ctx, f.path, docID, p); err != nil {
			var renderErr *errs.PageRenderError
			if errors.As(err, &renderErr) {
				c.log.Warn("skipping unrenderable page", map[string]any{"doc_id": docID, "page": p, "error": err.Error()})
				continue
			}
			c.rollbackDocument(ctx, docID)
			return err
		}
		result.PagesDone++
		c.metrics.IncCounter("doodledoc_pages_ingested_total", nil)
		sink.Notify(obs.Progress{
			Status: obs.StatusIndexing, DocsDone: result.DocsDone, DocsTotal: result.DocsTotal,
			PagesDone: result.PagesDone, PagesTotal: result.PagesTotal, CurrentDoc: f.path,
		})
	}
	return nil
}

// rollbackDocument undoes every C2/C3/C4/C5 write made for docID so far.
// Called when a document fails part-way through ingestion, so an aborted
// document leaves no row in C5. A document whose pages were all skipped as
// unrenderable is not rolled back and keeps its C5 row.
func (c *Coordinator) rollbackDocument(ctx context.Context, docID string) {
	if err := c.single.RemoveByDocID(ctx, docID); err != nil {
		c.log.Error("rollback: failed to remove single-vector records", map[string]any{"doc_id": docID, "error": err.Error()})
	}
	if err := c.multi.RemoveByDocID(ctx, docID); err != nil {
		c.log.Error("rollback: failed to remove multi-vector records", map[string]any{"doc_id": docID, "error": err.Error()})
	}
	c.text.RemoveByDocID(docID)
	if err := c.meta.DeleteDocument(ctx, docID); err != nil {
		c.log.Error("rollback: failed to delete document", map[string]any{"doc_id": docID, "error": err.Error()})
	}
}

func (c *Coordinator) processPage(ctx context.Context, pdfPath, docID string, pageNum int) error {
	img, err := c.renderer.RenderPage(ctx, pdfPath, pageNum, c.renderDPI)
	if err != nil {
		return &errs.PageRenderError{DocID: docID, PageNum: pageNum, Err: err}
	}

	if err := c.pageWriter.PutRenderedPage(ctx, docID, pageNum, img); err != nil {
		return &errs.PageRenderError{DocID: docID, PageNum: pageNum, Err: err}
	}

	text, err := c.textExtractor.ExtractPageText(pdfPath, pageNum)
	if err != nil {
		c.log.Warn("failed to extract text layer", map[string]any{"doc_id": docID, "page": pageNum, "error": err.Error()})
		text = ""
	}

	bounds := img.Bounds()
	page := model.Page{DocID: docID, PageNum: pageNum, WidthPx: bounds.Dx(), HeightPx: bounds.Dy(), TextLayer: text}
	if err := c.meta.AddPage(ctx, page); err != nil {
		return &errs.InputError{Msg: "failed to record page", Err: err}
	}
	if text != "" {
		c.text.Add(text, textindex.Entry{DocID: docID, PageNum: pageNum})
	}

	vectors, records, matrix, err := c.embedPageWithRetry(ctx, docID, pageNum, img)
	if err != nil {
		return err
	}

	if err := c.single.Add(ctx, vectors, records); err != nil {
		var dimErr *errs.DimensionMismatchError
		if errors.As(err, &dimErr) {
			return err // fatal per spec: propagate, abort ingest
		}
		return &errs.EmbeddingError{DocID: docID, PageNum: pageNum, Err: err}
	}

	if c.multiVectorEnabled && matrix != nil {
		if err := c.multi.Put(ctx, docID, pageNum, matrix); err != nil {
			return &errs.EmbeddingError{DocID: docID, PageNum: pageNum, Err: err}
		}
	}
	return nil
}

// embedPageWithRetry computes the region embeddings and, if enabled, the
// multi-vector embedding for a page, retrying once on a transient
// EmbeddingError before giving up. Nothing is written to single/multi here:
// computation is kept separate from the store writes in processPage so a
// retry never double-applies a write that already succeeded.
func (c *Coordinator) embedPageWithRetry(ctx context.Context, docID string, pageNum int, img image.Image) ([][]float32, []singlevec.Record, [][]float32, error) {
	const maxAttempts = 2
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		vectors, records, matrix, err := c.computePageEmbeddings(ctx, docID, pageNum, img)
		if err == nil {
			return vectors, records, matrix, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			c.log.Warn("retrying page embedding after failure", map[string]any{
				"doc_id": docID, "page": pageNum, "attempt": attempt, "error": err.Error(),
			})
		}
	}
	return nil, nil, nil, lastErr
}

func (c *Coordinator) computePageEmbeddings(ctx context.Context, docID string, pageNum int, img image.Image) ([][]float32, []singlevec.Record, [][]float32, error) {
	prepared := prep.Prepare(img, c.regionOverlap, c.prepParams)
	vectors := make([][]float32, 0, len(model.Regions))
	records := make([]singlevec.Record, 0, len(model.Regions))
	for _, region := range model.Regions {
		regionImg := prepared.Regions[region]
		vec, err := c.singleEmbed.EmbedOne(ctx, regionImg)
		if err != nil {
			return nil, nil, nil, &errs.EmbeddingError{DocID: docID, PageNum: pageNum, Region: string(region), Err: err}
		}
		vectors = append(vectors, vec)
		records = append(records, singlevec.Record{DocID: docID, PageNum: pageNum, Region: region})
	}

	var matrix [][]float32
	if c.multiVectorEnabled && c.multiEmbed != nil {
		m, err := c.multiEmbed.EmbedOne(ctx, img)
		if err != nil {
			return nil, nil, nil, &errs.EmbeddingError{DocID: docID, PageNum: pageNum, Err: err}
		}
		matrix = m
	}
	return vectors, records, matrix, nil
}

func pageFilename(pageNum int) string {
	return itoa(pageNum) + ".png"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func (c *Coordinator) persist() error {
	// Save order matters for crash safety: C4/C3 before C2 before C5, so a
	// crash leaves orphans in subordinate stores but never a ghost document
	// visible through the metadata store.
	c.text.Build()
	if err := c.text.Save(filepath.Join(c.dataDir, "index", "bm25")); err != nil {
		return err
	}
	if err := c.multi.Save(filepath.Join(c.dataDir, "colqwen")); err != nil {
		return err
	}
	if err := c.single.Save(filepath.Join(c.dataDir, "index")); err != nil {
		return err
	}
	return nil
}

func discoverPDFs(root string) ([]pdfFile, error) {
	var out []pdfFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		sum, err := StreamingSHA256(f)
		if err != nil {
			return err
		}
		out = append(out, pdfFile{path: path, sha256: sum})
		return nil
	})
	return out, err
}
