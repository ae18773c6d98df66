// Package textindex implements the text index (C4): a standard BM25 index
// keyed by (doc_id, page_num) over the PDF text layer, used for the
// optional text-boost fusion stage in retrieval.
package textindex

import "context"

// Entry is the metadata attached to one indexed page.
type Entry struct {
	DocID   string `json:"doc_id"`
	PageNum int    `json:"page_num"`
}

// Hit is one search result.
type Hit struct {
	Entry Entry
	Score float64
}

// Index is the C4 contract.
type Index interface {
	// Add appends one page's text with its metadata. Whitespace-only or
	// empty text is ignored: empty-text pages never contribute entries
	// and can never be returned from Search.
	Add(text string, metadata Entry)
	// Build materializes BM25 statistics (term frequencies, document
	// lengths, average length, IDF) over everything added so far. Search
	// is only valid after Build.
	Build()
	// Search returns the top-k (metadata, score) pairs ordered by score
	// descending, ties broken by insertion index. Scores are
	// non-negative and non-increasing down the returned list.
	Search(ctx context.Context, query string, k int) ([]Hit, error)
	// RemoveByDocID removes every entry belonging to docID. A following
	// Build is required to refresh statistics.
	RemoveByDocID(docID string)
	// Save persists the tokenized corpus and metadata to dir.
	Save(dir string) error
	// Load replaces the in-memory index with the contents of dir and
	// rebuilds statistics.
	Load(dir string) error
	// Size returns the number of indexed (non-removed) pages.
	Size() int
}
