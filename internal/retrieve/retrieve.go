// Package retrieve implements the retrieval engine (C7): given a sketch
// and optional text query, searches the single-vector index (fast mode)
// or reranks with the multi-vector store's late-interaction scoring
// (accurate mode), resolving document names through the metadata store.
package retrieve

import (
	"context"
	"image"
	"sort"
	"time"

	"doodledoc/internal/embed"
	"doodledoc/internal/errs"
	"doodledoc/internal/logging"
	"doodledoc/internal/metadatastore"
	"doodledoc/internal/multivec"
	"doodledoc/internal/obs"
	"doodledoc/internal/prep"
	"doodledoc/internal/singlevec"
	"doodledoc/internal/textindex"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeAccurate Mode = "accurate"
)

// Stage labels the pipeline stage that produced a result, surfaced to
// callers for transparency about how a score was computed.
type Stage string

const (
	StageFast     Stage = "fast"
	StageReranked Stage = "reranked"
)

// Query is the input to a retrieval call.
type Query struct {
	Sketch    image.Image
	Text      string
	TopK      int
	Mode      Mode
	UseRerank bool
}

// Result is a single ranked page.
type Result struct {
	DocID   string  `json:"doc_id"`
	DocName string  `json:"doc_name"`
	PageNum int     `json:"page_num"`
	Score   float64 `json:"score"`
	Stage   Stage   `json:"stage"`
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithLogger(l logging.Logger) Option      { return func(e *Engine) { e.log = l } }
func WithMetrics(m obs.Metrics) Option         { return func(e *Engine) { e.metrics = m } }
func WithStage1TopK(k int) Option              { return func(e *Engine) { e.stage1TopK = k } }
func WithRegionOverlap(o float64) Option        { return func(e *Engine) { e.regionOverlap = o } }
func WithPrepParams(p prep.Params) Option       { return func(e *Engine) { e.prepParams = p } }
func WithTextBoostWeight(w float64) Option      { return func(e *Engine) { e.textBoostWeight = w } }
func WithEnableTextBoost(enabled bool) Option   { return func(e *Engine) { e.enableTextBoost = enabled } }
func WithRenderedPageLoader(l RenderedPageLoader) Option { return func(e *Engine) { e.renderedLoader = l } }

// WithCache attaches an optional read-through result cache. A nil cache
// (the zero value returned by NewResultCache when disabled) is accepted
// and simply disables caching.
func WithCache(c *ResultCache) Option { return func(e *Engine) { e.cache = c } }

// RenderedPageLoader loads a previously-rendered page bitmap from disk, used
// by the accurate-mode fallback path when C3 has no stored matrix for a
// candidate and must re-embed the rendered page on the fly.
type RenderedPageLoader interface {
	LoadRenderedPage(ctx context.Context, docID string, pageNum int) (image.Image, error)
}

// Engine is the C7 retrieval engine. It is read-only with respect to its
// backing stores and safe for concurrent queries.
type Engine struct {
	single      singlevec.Index
	multi       multivec.Store
	text        textindex.Index
	meta        metadatastore.Store
	singleEmbed embed.SingleVectorEmbedder
	multiEmbed  embed.MultiVectorEmbedder

	stage1TopK      int
	regionOverlap   float64
	prepParams      prep.Params
	enableTextBoost bool
	textBoostWeight float64
	renderedLoader  RenderedPageLoader
	cache           *ResultCache

	log     logging.Logger
	metrics obs.Metrics
}

const rrfK = 60

// New constructs an Engine over the given backing stores and embedders.
func New(
	single singlevec.Index,
	multi multivec.Store,
	text textindex.Index,
	meta metadatastore.Store,
	singleEmbed embed.SingleVectorEmbedder,
	multiEmbed embed.MultiVectorEmbedder,
	opts ...Option,
) *Engine {
	e := &Engine{
		single:          single,
		multi:           multi,
		text:            text,
		meta:            meta,
		singleEmbed:     singleEmbed,
		multiEmbed:      multiEmbed,
		stage1TopK:      100,
		regionOverlap:   0.10,
		prepParams:      prep.DefaultParams(),
		enableTextBoost: true,
		textBoostWeight: 0.3,
		log:             logging.Noop{},
		metrics:         obs.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type pageKey struct {
	docID   string
	pageNum int
}

// Search runs a retrieval query, dispatching to fast or accurate mode.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, time.Duration, error) {
	start := time.Now()
	if q.Sketch == nil {
		return nil, 0, &errs.QueryError{Msg: "sketch image is required"}
	}
	if q.TopK <= 0 {
		return nil, time.Since(start), nil
	}

	mode := q.Mode
	if mode == "" {
		mode = ModeFast
	}
	q.Mode = mode

	if cached, ok := e.cache.Get(ctx, q); ok {
		e.metrics.IncCounter("doodledoc_cache_hits_total", nil)
		return cached, time.Since(start), nil
	}

	var results []Result
	var err error
	switch mode {
	case ModeAccurate:
		results, err = e.searchAccurate(ctx, q)
	default:
		results, err = e.searchFast(ctx, q)
	}
	if err != nil {
		return nil, time.Since(start), err
	}
	e.cache.Set(ctx, q, results)
	return results, time.Since(start), nil
}

func (e *Engine) searchFast(ctx context.Context, q Query) ([]Result, error) {
	prepared := prep.PrepareSketch(q.Sketch, e.regionOverlap, e.prepParams)
	vec, err := e.singleEmbed.EmbedOne(ctx, prepared.Normalized)
	if err != nil {
		return nil, &errs.QueryError{Msg: "failed to embed sketch", Err: err}
	}

	hits, err := e.single.Search(ctx, vec, e.stage1TopK)
	if err != nil {
		return nil, &errs.QueryError{Msg: "single-vector search failed", Err: err}
	}

	pageScores := AggregateToPage(hits)
	visualRank := rankPages(pageScores)

	var finalOrder []pageKey
	if q.Text != "" && e.enableTextBoost {
		textHits, err := e.text.Search(ctx, q.Text, e.stage1TopK)
		if err != nil {
			return nil, &errs.QueryError{Msg: "text search failed", Err: err}
		}
		textRank := make([]pageKey, len(textHits))
		for i, h := range textHits {
			textRank[i] = pageKey{docID: h.Entry.DocID, pageNum: h.Entry.PageNum}
		}
		finalOrder = fuseRRF(visualRank, textRank)
	} else {
		finalOrder = visualRank
	}

	if q.TopK < len(finalOrder) {
		finalOrder = finalOrder[:q.TopK]
	}
	return e.resolveResults(ctx, finalOrder, pageScores, StageFast)
}

func (e *Engine) searchAccurate(ctx context.Context, q Query) ([]Result, error) {
	if e.multiEmbed == nil {
		return e.searchFast(ctx, q)
	}
	prepared := prep.PrepareSketch(q.Sketch, e.regionOverlap, e.prepParams)
	queryMatrix, err := e.multiEmbed.EmbedOne(ctx, prepared.Raw)
	if err != nil {
		return nil, &errs.QueryError{Msg: "failed to embed sketch for rerank", Err: err}
	}

	candidates, err := e.candidateKeys(ctx, q)
	if err != nil {
		return nil, err
	}

	type scored struct {
		key   pageKey
		score float64
	}
	var scoredCandidates []scored
	for _, k := range candidates {
		matrix, ok, err := e.loadCandidateMatrix(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			e.log.Warn("dropping candidate missing from multi-vector store", map[string]any{"doc_id": k.docID, "page": k.pageNum})
			continue
		}
		score := multivec.MaxSim(queryMatrix, matrix)
		scoredCandidates = append(scoredCandidates, scored{key: k, score: score})
	}
	sort.SliceStable(scoredCandidates, func(a, b int) bool {
		if scoredCandidates[a].score != scoredCandidates[b].score {
			return scoredCandidates[a].score > scoredCandidates[b].score
		}
		if scoredCandidates[a].key.docID != scoredCandidates[b].key.docID {
			return scoredCandidates[a].key.docID < scoredCandidates[b].key.docID
		}
		return scoredCandidates[a].key.pageNum < scoredCandidates[b].key.pageNum
	})

	if q.TopK < len(scoredCandidates) {
		scoredCandidates = scoredCandidates[:q.TopK]
	}

	out := make([]Result, 0, len(scoredCandidates))
	for _, sc := range scoredCandidates {
		docName := sc.key.docID
		if doc, err := e.meta.GetDocument(ctx, sc.key.docID); err == nil {
			docName = doc.Path
		}
		out = append(out, Result{DocID: sc.key.docID, DocName: docName, PageNum: sc.key.pageNum, Score: sc.score, Stage: StageReranked})
	}
	return out, nil
}

// candidateKeys enumerates the set of pages considered for accurate-mode
// reranking: every key stored in C3 when it is populated, or the fast-mode
// stage-1 candidate set when C3 is empty (spec's documented fallback).
func (e *Engine) candidateKeys(ctx context.Context, q Query) ([]pageKey, error) {
	allKeys, err := e.multi.AllKeys(ctx)
	if err != nil {
		return nil, &errs.QueryError{Msg: "failed to list multi-vector keys", Err: err}
	}
	if len(allKeys) > 0 {
		keys := make([]pageKey, len(allKeys))
		for i, p := range allKeys {
			keys[i] = pageKey{docID: p.DocID, pageNum: p.PageNum}
		}
		return keys, nil
	}

	prepared := prep.PrepareSketch(q.Sketch, e.regionOverlap, e.prepParams)
	vec, err := e.singleEmbed.EmbedOne(ctx, prepared.Normalized)
	if err != nil {
		return nil, &errs.QueryError{Msg: "failed to embed sketch", Err: err}
	}
	hits, err := e.single.Search(ctx, vec, e.stage1TopK)
	if err != nil {
		return nil, &errs.QueryError{Msg: "single-vector search failed", Err: err}
	}
	pageScores := AggregateToPage(hits)
	order := rankPages(pageScores)
	return order, nil
}

// loadCandidateMatrix returns the candidate's multi-vector matrix, reading
// it from C3 when present, or lazily re-embedding the rendered page from
// disk when C3 has nothing stored for it.
func (e *Engine) loadCandidateMatrix(ctx context.Context, k pageKey) (multivec.Matrix, bool, error) {
	has, err := e.multi.Has(ctx, k.docID, k.pageNum)
	if err != nil {
		return nil, false, &errs.QueryError{Msg: "failed to probe multi-vector store", Err: err}
	}
	if has {
		m, err := e.multi.Get(ctx, k.docID, k.pageNum)
		if err != nil {
			return nil, false, nil
		}
		return m, true, nil
	}
	if e.renderedLoader == nil {
		return nil, false, nil
	}
	img, err := e.renderedLoader.LoadRenderedPage(ctx, k.docID, k.pageNum)
	if err != nil {
		return nil, false, nil // MissingArtifact: drop candidate, never fail the query
	}
	matrix, err := e.multiEmbed.EmbedOne(ctx, img)
	if err != nil {
		return nil, false, nil
	}
	return matrix, true, nil
}

func (e *Engine) resolveResults(ctx context.Context, order []pageKey, scores map[pageKey]float64, stage Stage) ([]Result, error) {
	out := make([]Result, 0, len(order))
	for _, k := range order {
		docName := k.docID
		if doc, err := e.meta.GetDocument(ctx, k.docID); err == nil {
			docName = doc.Path
		}
		out = append(out, Result{DocID: k.docID, DocName: docName, PageNum: k.pageNum, Score: scores[k], Stage: stage})
	}
	return out, nil
}

// AggregateToPage reduces region-level hits to one score per page by
// taking the maximum score across a page's regions, per spec §4.7: a
// crisp match in one quadrant must not be diluted by weaker matches
// elsewhere. This is idempotent: applying it to its own output (treated as
// single-region hits) yields the same map.
func AggregateToPage(hits []singlevec.Hit) map[pageKey]float64 {
	out := make(map[pageKey]float64, len(hits))
	for _, h := range hits {
		k := pageKey{docID: h.Record.DocID, pageNum: h.Record.PageNum}
		if cur, ok := out[k]; !ok || h.Score > cur {
			out[k] = h.Score
		}
	}
	return out
}

func rankPages(scores map[pageKey]float64) []pageKey {
	keys := make([]pageKey, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(a, b int) bool {
		if scores[keys[a]] != scores[keys[b]] {
			return scores[keys[a]] > scores[keys[b]]
		}
		if keys[a].docID != keys[b].docID {
			return keys[a].docID < keys[b].docID
		}
		return keys[a].pageNum < keys[b].pageNum
	})
	return keys
}

// fuseRRF combines two ranked lists by Reciprocal Rank Fusion:
// score(p) = sum over lists of 1/(k_RRF + rank), with entries absent from
// a list contributing zero from that list. A single-input-list call
// preserves the input order (spec invariant #6).
func fuseRRF(lists ...[]pageKey) []pageKey {
	scores := map[pageKey]float64{}
	seen := map[pageKey]bool{}
	var order []pageKey
	for _, list := range lists {
		for rank, k := range list {
			scores[k] += 1.0 / float64(rrfK+rank+1)
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return false
	})
	return order
}
