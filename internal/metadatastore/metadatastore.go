// Package metadatastore implements the metadata store (C5): the
// authoritative record of ingested documents and their pages, backed by
// SQLite by default with an optional Postgres backend for deployments that
// already run a shared database.
package metadatastore

import (
	"context"
	"errors"

	"doodledoc/internal/model"
)

// ErrNotFound is returned by the Get* methods when no matching row exists.
var ErrNotFound = errors.New("metadatastore: not found")

// Store is the C5 contract.
type Store interface {
	// AddDocument inserts a new document row. Sha256 is the dedupe key;
	// callers must check GetDocumentByHash first.
	AddDocument(ctx context.Context, doc model.Document) error
	// GetDocument returns the document with the given ID.
	GetDocument(ctx context.Context, docID string) (model.Document, error)
	// GetDocumentByHash looks up a document by its content hash, the
	// mechanism the ingestion coordinator uses to skip re-indexing
	// unchanged files.
	GetDocumentByHash(ctx context.Context, sha256 string) (model.Document, error)
	// ListDocuments returns every document. SQLiteStore returns them in
	// insertion order; PostgresStore orders them by doc_id, which is not
	// insertion order.
	ListDocuments(ctx context.Context) ([]model.Document, error)
	// DeleteDocument removes a document and, cascading, all of its pages.
	DeleteDocument(ctx context.Context, docID string) error

	// AddPage inserts a page row belonging to an already-added document.
	AddPage(ctx context.Context, page model.Page) error
	// GetPages returns every page belonging to docID, ordered by PageNum.
	GetPages(ctx context.Context, docID string) ([]model.Page, error)
	// GetPage returns a single page.
	GetPage(ctx context.Context, docID string, pageNum int) (model.Page, error)

	// Close releases underlying resources (connections, file handles).
	Close() error
}
