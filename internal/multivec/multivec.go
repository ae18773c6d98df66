// Package multivec implements the multi-vector store (C3): per-page patch
// matrices used for late-interaction (MaxSim) reranking in accurate-mode
// retrieval. Unlike C2, matrices are not cached in memory; each Get reads
// its blob from disk so memory stays bounded regardless of corpus size.
package multivec

import (
	"context"

	"doodledoc/internal/model"
)

// Matrix is a page's patch-embedding matrix: one row per patch.
type Matrix [][]float32

// Shape describes a stored matrix without loading it.
type Shape struct {
	Rows int
	Dim  int
}

// Store is the C3 contract.
type Store interface {
	// Put writes a page's patch matrix, replacing any existing one for the
	// same key.
	Put(ctx context.Context, docID string, pageNum int, matrix Matrix) error
	// Get reads a page's patch matrix fresh from storage. Returns
	// *errs.MissingArtifactError if absent.
	Get(ctx context.Context, docID string, pageNum int) (Matrix, error)
	// Has reports whether a matrix is stored for the key, without reading it.
	Has(ctx context.Context, docID string, pageNum int) (bool, error)
	// RemoveByDocID deletes every matrix belonging to docID.
	RemoveByDocID(ctx context.Context, docID string) error
	// AllKeys lists every stored (docID, pageNum) pair.
	AllKeys(ctx context.Context) ([]model.Page, error)
	// Save persists the manifest to dir.
	Save(dir string) error
	// Load replaces the in-memory manifest with the contents of dir.
	Load(dir string) error
}
