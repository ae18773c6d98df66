package prep

import (
	"image"

	"doodledoc/internal/model"
)

// PreparedPage bundles C1's three outputs for a single rendered page.
type PreparedPage struct {
	// Normalized is the 384x384 RGB canvas used for single-vector embedding.
	Normalized *image.RGBA
	// Regions holds the five region crops of Normalized, ready for
	// per-region embedding in model.Regions order.
	Regions map[model.Region]image.Image
	// Raw is the original full-resolution bitmap, used for multi-vector
	// embedding and rerank image lookup.
	Raw image.Image
}

// Prepare runs the full C1 pipeline over a rendered page bitmap.
func Prepare(page image.Image, overlap float64, p Params) PreparedPage {
	normalized := NormalizeInk(page, p)
	return PreparedPage{
		Normalized: normalized,
		Regions:    ExtractRegions(normalized, overlap),
		Raw:        page,
	}
}

// PrepareSketch runs the C1 pipeline over a user-submitted sketch, which
// may carry an alpha channel that must be flattened onto white first.
func PrepareSketch(sketch image.Image, overlap float64, p Params) PreparedPage {
	normalized := NormalizeSketch(sketch, p)
	return PreparedPage{
		Normalized: normalized,
		Regions:    ExtractRegions(normalized, overlap),
		Raw:        sketch,
	}
}
