// Package embed defines the capability contracts the retrieval engine and
// ingestion coordinator depend on, rather than a concrete model. Two
// capabilities exist because a page carries two complementary
// representations: a single dense vector per region, and a matrix of patch
// vectors for late-interaction scoring.
package embed

import (
	"context"
	"image"
)

// SingleVectorEmbedder produces one L2-normalized vector of fixed
// dimension per image.
type SingleVectorEmbedder interface {
	// EmbedOne embeds a single image.
	EmbedOne(ctx context.Context, img image.Image) ([]float32, error)
	// EmbedBatch embeds a batch of images; implementations may parallelize
	// or batch internally, but the call is conceptually independent per
	// image and returns one vector per input in order.
	EmbedBatch(ctx context.Context, imgs []image.Image) ([][]float32, error)
	// Dimension returns D1, the fixed output dimension.
	Dimension() int
}

// MultiVectorEmbedder produces a P×D2 matrix of patch vectors per image; P
// depends on image tiling and is not fixed across pages.
type MultiVectorEmbedder interface {
	// EmbedOne embeds a single image into a patch matrix, one row per patch.
	EmbedOne(ctx context.Context, img image.Image) ([][]float32, error)
	// Dimension returns D2, the fixed per-patch dimension.
	Dimension() int
}
