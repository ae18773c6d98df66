package metadatastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"doodledoc/internal/model"
)

// PostgresStore is an optional C5 backend for deployments that already run
// Postgres for other concerns. Schema mirrors SQLiteStore: best-effort
// CREATE IF NOT EXISTS for dev; production migrations are managed
// externally.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and ensures the documents/pages tables exist.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS documents (
  doc_id        TEXT PRIMARY KEY,
  path          TEXT NOT NULL,
  sha256        TEXT NOT NULL UNIQUE,
  modified_time TIMESTAMPTZ NOT NULL,
  num_pages     INT NOT NULL
);
CREATE TABLE IF NOT EXISTS pages (
  doc_id     TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
  page_num   INT NOT NULL,
  width_px   INT NOT NULL,
  height_px  INT NOT NULL,
  text_layer TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (doc_id, page_num)
);
`)
	return err
}

func (s *PostgresStore) AddDocument(ctx context.Context, doc model.Document) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents (doc_id, path, sha256, modified_time, num_pages) VALUES ($1, $2, $3, $4, $5)
`, doc.DocID, doc.Path, doc.Sha256, doc.ModifiedTime, doc.NumPages)
	return err
}

func (s *PostgresStore) GetDocument(ctx context.Context, docID string) (model.Document, error) {
	row := s.pool.QueryRow(ctx, `
SELECT doc_id, path, sha256, modified_time, num_pages FROM documents WHERE doc_id = $1
`, docID)
	return scanDocumentRow(row)
}

func (s *PostgresStore) GetDocumentByHash(ctx context.Context, sha256 string) (model.Document, error) {
	row := s.pool.QueryRow(ctx, `
SELECT doc_id, path, sha256, modified_time, num_pages FROM documents WHERE sha256 = $1
`, sha256)
	return scanDocumentRow(row)
}

func scanDocumentRow(row pgx.Row) (model.Document, error) {
	var doc model.Document
	if err := row.Scan(&doc.DocID, &doc.Path, &doc.Sha256, &doc.ModifiedTime, &doc.NumPages); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Document{}, ErrNotFound
		}
		return model.Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx, `
SELECT doc_id, path, sha256, modified_time, num_pages FROM documents ORDER BY doc_id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Document
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.DocID, &doc.Path, &doc.Sha256, &doc.ModifiedTime, &doc.NumPages); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE doc_id = $1`, docID)
	return err
}

func (s *PostgresStore) AddPage(ctx context.Context, page model.Page) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO pages (doc_id, page_num, width_px, height_px, text_layer) VALUES ($1, $2, $3, $4, $5)
`, page.DocID, page.PageNum, page.WidthPx, page.HeightPx, page.TextLayer)
	return err
}

func (s *PostgresStore) GetPages(ctx context.Context, docID string) ([]model.Page, error) {
	rows, err := s.pool.Query(ctx, `
SELECT doc_id, page_num, width_px, height_px, text_layer FROM pages WHERE doc_id = $1 ORDER BY page_num ASC
`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Page
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.DocID, &p.PageNum, &p.WidthPx, &p.HeightPx, &p.TextLayer); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetPage(ctx context.Context, docID string, pageNum int) (model.Page, error) {
	row := s.pool.QueryRow(ctx, `
SELECT doc_id, page_num, width_px, height_px, text_layer FROM pages WHERE doc_id = $1 AND page_num = $2
`, docID, pageNum)
	var p model.Page
	if err := row.Scan(&p.DocID, &p.PageNum, &p.WidthPx, &p.HeightPx, &p.TextLayer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Page{}, ErrNotFound
		}
		return model.Page{}, err
	}
	return p, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
