package eval

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"

	"doodledoc/internal/retrieve"
)

// ExportHumanEvalCSV writes one row per query's top results so a human
// reviewer can mark relevance judgments offline, supplementing the
// automatic self-crop Recall@k/MRR metrics with a spot-check surface.
func ExportHumanEvalCSV(ctx context.Context, engine *retrieve.Engine, queries []PseudoQuery, mode retrieve.Mode, topK int, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"query_crop_path", "ground_truth_doc_id", "ground_truth_page", "rank", "result_doc_id", "result_page", "score", "relevant"}); err != nil {
		return err
	}

	for _, q := range queries {
		img, err := loadCropImage(q.CropPath)
		if err != nil {
			continue
		}
		results, _, err := engine.Search(ctx, retrieve.Query{Sketch: img, TopK: topK, Mode: mode})
		if err != nil {
			continue
		}
		for i, r := range results {
			row := []string{
				q.CropPath, q.DocID, itoa(q.PageNum), itoa(i + 1),
				r.DocID, itoa(r.PageNum), strconv.FormatFloat(r.Score, 'f', 6, 64), "",
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}
