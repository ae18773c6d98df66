package metadatastore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"doodledoc/internal/model"
)

// SQLiteStore is the default C5 backend: two tables, documents and pages,
// with pages cascading on document delete.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path and
// ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // go-sqlite3 serializes writers anyway; avoids SQLITE_BUSY churn
	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS documents (
  doc_id        TEXT PRIMARY KEY,
  path          TEXT NOT NULL,
  sha256        TEXT NOT NULL UNIQUE,
  modified_time DATETIME NOT NULL,
  num_pages     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pages (
  doc_id     TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
  page_num   INTEGER NOT NULL,
  width_px   INTEGER NOT NULL,
  height_px  INTEGER NOT NULL,
  text_layer TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (doc_id, page_num)
);
`)
	return err
}

func (s *SQLiteStore) AddDocument(ctx context.Context, doc model.Document) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (doc_id, path, sha256, modified_time, num_pages) VALUES (?, ?, ?, ?, ?)
`, doc.DocID, doc.Path, doc.Sha256, doc.ModifiedTime, doc.NumPages)
	return err
}

func (s *SQLiteStore) GetDocument(ctx context.Context, docID string) (model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT doc_id, path, sha256, modified_time, num_pages FROM documents WHERE doc_id = ?
`, docID)
	return scanDocument(row)
}

func (s *SQLiteStore) GetDocumentByHash(ctx context.Context, sha256 string) (model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT doc_id, path, sha256, modified_time, num_pages FROM documents WHERE sha256 = ?
`, sha256)
	return scanDocument(row)
}

func scanDocument(row *sql.Row) (model.Document, error) {
	var doc model.Document
	if err := row.Scan(&doc.DocID, &doc.Path, &doc.Sha256, &doc.ModifiedTime, &doc.NumPages); err != nil {
		if err == sql.ErrNoRows {
			return model.Document{}, ErrNotFound
		}
		return model.Document{}, err
	}
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT doc_id, path, sha256, modified_time, num_pages FROM documents ORDER BY rowid ASC
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

func (s *SQLiteStore) DeleteDocument(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
	return err
}

func (s *SQLiteStore) AddPage(ctx context.Context, page model.Page) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO pages (doc_id, page_num, width_px, height_px, text_layer) VALUES (?, ?, ?, ?, ?)
`, page.DocID, page.PageNum, page.WidthPx, page.HeightPx, page.TextLayer)
	return err
}

func (s *SQLiteStore) GetPages(ctx context.Context, docID string) ([]model.Page, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT doc_id, page_num, width_px, height_px, text_layer FROM pages WHERE doc_id = ? ORDER BY page_num ASC
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

func (s *SQLiteStore) GetPage(ctx context.Context, docID string, pageNum int) (model.Page, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT doc_id, page_num, width_px, height_px, text_layer FROM pages WHERE doc_id = ? AND page_num = ?
`, docID, pageNum)
	var p model.Page
	if err := row.Scan(&p.DocID, &p.PageNum, &p.WidthPx, &p.HeightPx, &p.TextLayer); err != nil {
		if err == sql.ErrNoRows {
			return model.Page{}, ErrNotFound
		}
		return model.Page{}, err
	}
	return p, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
