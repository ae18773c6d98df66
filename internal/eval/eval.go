// Package eval implements the evaluation harness (C8): generates
// pseudo-queries by cropping indexed pages, runs them against the
// retrieval engine, and reports Recall@k, MRR, and latency percentiles
// with a baseline-regression comparator.
package eval

import (
	"context"
	"encoding/json"
	"image"
	"image/draw"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"doodledoc/internal/logging"
	"doodledoc/internal/metadatastore"
	"doodledoc/internal/retrieve"
)

// PseudoQuery is one generated query: a crop of an indexed page, with the
// source page recorded as ground truth.
type PseudoQuery struct {
	DocID    string          `json:"doc_id"`
	PageNum  int             `json:"page_num"`
	CropRect image.Rectangle `json:"crop_rect"`
	CropPath string          `json:"crop_path"`
}

// marginFraction excludes crops from touching a page's outer 5%, so a
// pseudo-query never straddles the physical page edge the way a real
// sketch of page content rarely would.
const marginFraction = 0.05

const (
	minCropRatio = 0.15
	maxCropRatio = 0.40
	warmupCount  = 3
)

// GenerateQueries samples numQueries indexed pages uniformly with
// replacement (the same page may be picked more than once) and crops a
// random rectangle out of each rendered page, writing crop PNGs and a
// manifest.json listing the generated queries under outDir.
// The RNG is seeded for reproducibility: the same seed against the same
// corpus always yields the same queries.
func GenerateQueries(
	ctx context.Context,
	meta metadatastore.Store,
	loader retrieve.RenderedPageLoader,
	numQueries int,
	seed int64,
	outDir string,
) ([]PseudoQuery, error) {
	docs, err := meta.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	var allPages []struct {
		docID   string
		pageNum int
	}
	for _, d := range docs {
		pages, err := meta.GetPages(ctx, d.DocID)
		if err != nil {
			return nil, err
		}
		for _, p := range pages {
			allPages = append(allPages, struct {
				docID   string
				pageNum int
			}{d.DocID, p.PageNum})
		}
	}
	if len(allPages) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	queries := make([]PseudoQuery, 0, numQueries)
	for i := 0; i < numQueries; i++ {
		pick := allPages[rng.Intn(len(allPages))]
		img, err := loader.LoadRenderedPage(ctx, pick.docID, pick.pageNum)
		if err != nil {
			continue // source page unavailable; skip rather than fail the whole run
		}
		crop, rect := cropPage(img, rng)

		cropPath := filepath.Join(outDir, pick.docID+"_"+itoa(pick.pageNum)+"_"+itoa(i)+".png")
		if err := writeCropPNG(cropPath, crop); err != nil {
			return nil, err
		}
		queries = append(queries, PseudoQuery{
			DocID: pick.docID, PageNum: pick.pageNum, CropRect: rect, CropPath: cropPath,
		})
	}
	manifest, err := json.MarshalIndent(queries, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(outDir, "manifest.json"), manifest, 0o644); err != nil {
		return nil, err
	}
	return queries, nil
}

func cropPage(img image.Image, rng *rand.Rand) (image.Image, image.Rectangle) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	minDim := w
	if h < minDim {
		minDim = h
	}

	ratio := minCropRatio + rng.Float64()*(maxCropRatio-minCropRatio)
	side := int(float64(minDim) * ratio)
	if side < 1 {
		side = 1
	}

	marginX := int(float64(w) * marginFraction)
	marginY := int(float64(h) * marginFraction)
	maxX := w - marginX - side
	maxY := h - marginY - side
	if maxX < marginX {
		maxX = marginX
	}
	if maxY < marginY {
		maxY = marginY
	}

	x0 := marginX
	if maxX > marginX {
		x0 = marginX + rng.Intn(maxX-marginX+1)
	}
	y0 := marginY
	if maxY > marginY {
		y0 = marginY + rng.Intn(maxY-marginY+1)
	}

	rect := image.Rect(bounds.Min.X+x0, bounds.Min.Y+y0, bounds.Min.X+x0+side, bounds.Min.Y+y0+side)
	crop := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(crop, crop.Bounds(), img, rect.Min, draw.Src)
	return crop, rect
}

func writeCropPNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
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

// Result is the outcome of one evaluation run over one retrieval mode.
type Result struct {
	Mode        retrieve.Mode   `json:"mode"`
	NumQueries  int             `json:"num_queries"`
	RecallAtK   map[int]float64 `json:"recall_at_k"`
	MRR         float64         `json:"mrr"`
	LatencyP50  time.Duration   `json:"latency_p50"`
	LatencyP95  time.Duration   `json:"latency_p95"`
	LatencyMean time.Duration   `json:"latency_mean"`
	Timestamp   time.Time       `json:"timestamp"`
}

// recallCutoffs are the k values reported by default.
var recallCutoffs = []int{1, 5, 10, 20}

// Run executes a warm-up (discarded) then times and scores every query in
// queries against engine under the given mode, loading each query's crop
// image from disk.
func Run(ctx context.Context, engine *retrieve.Engine, queries []PseudoQuery, mode retrieve.Mode, log logging.Logger) (Result, error) {
	if log == nil {
		log = logging.Noop{}
	}
	if len(queries) == 0 {
		return Result{Mode: mode, RecallAtK: map[int]float64{}}, nil
	}

	maxK := recallCutoffs[len(recallCutoffs)-1]

	warmup := queries
	if len(warmup) > warmupCount {
		warmup = warmup[:warmupCount]
	}
	for _, q := range warmup {
		img, err := loadCropImage(q.CropPath)
		if err != nil {
			continue
		}
		_, _, _ = engine.Search(ctx, retrieve.Query{Sketch: img, TopK: maxK, Mode: mode})
	}

	hits := map[int]int{}
	var reciprocalRankSum float64
	latencies := make([]time.Duration, 0, len(queries))

	for _, q := range queries {
		img, err := loadCropImage(q.CropPath)
		if err != nil {
			log.Warn("failed to load pseudo-query crop", map[string]any{"path": q.CropPath, "error": err.Error()})
			continue
		}
		results, elapsed, err := engine.Search(ctx, retrieve.Query{Sketch: img, TopK: maxK, Mode: mode})
		if err != nil {
			log.Warn("pseudo-query search failed", map[string]any{"doc_id": q.DocID, "page": q.PageNum, "error": err.Error()})
			continue
		}
		latencies = append(latencies, elapsed)

		rank := rankOf(results, q.DocID, q.PageNum)
		if rank > 0 {
			reciprocalRankSum += 1.0 / float64(rank)
			for _, k := range recallCutoffs {
				if rank <= k {
					hits[k]++
				}
			}
		}
	}

	n := len(latencies)
	recall := make(map[int]float64, len(recallCutoffs))
	for _, k := range recallCutoffs {
		if n == 0 {
			recall[k] = 0
			continue
		}
		recall[k] = float64(hits[k]) / float64(n)
	}
	mrr := 0.0
	if n > 0 {
		mrr = reciprocalRankSum / float64(n)
	}

	p50, p95, mean := latencyStats(latencies)
	return Result{
		Mode: mode, NumQueries: n, RecallAtK: recall, MRR: mrr,
		LatencyP50: p50, LatencyP95: p95, LatencyMean: mean,
	}, nil
}

func rankOf(results []retrieve.Result, docID string, pageNum int) int {
	for i, r := range results {
		if r.DocID == docID && r.PageNum == pageNum {
			return i + 1
		}
	}
	return 0
}

func latencyStats(latencies []time.Duration) (p50, p95, mean time.Duration) {
	if len(latencies) == 0 {
		return 0, 0, 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	p50 = percentile(sorted, 0.50)
	p95 = percentile(sorted, 0.95)

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	mean = sum / time.Duration(len(sorted))
	return p50, p95, mean
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func loadCropImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}
