package singlevec

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"doodledoc/internal/errs"
	"doodledoc/internal/model"
)

// PostgresIndex is an optional C2 backend over pgvector, for deployments
// that already run Postgres for C5 and would rather not operate a second
// vector store. It satisfies Index with inner-product ordering, matching
// the L2-normalized-vector contract used everywhere else in C2.
type PostgresIndex struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgresIndex ensures the pgvector extension and backing table exist
// and returns a ready PostgresIndex.
func NewPostgresIndex(ctx context.Context, pool *pgxpool.Pool, dim int) (*PostgresIndex, error) {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("enable pgvector extension: %w", err)
	}
	vecType := "vector"
	if dim > 0 {
		vecType = fmt.Sprintf("vector(%d)", dim)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS singlevec_rows (
  id BIGSERIAL PRIMARY KEY,
  doc_id TEXT NOT NULL,
  page_num INT NOT NULL,
  region TEXT NOT NULL,
  vec %s NOT NULL
);
CREATE INDEX IF NOT EXISTS singlevec_rows_doc_id_idx ON singlevec_rows(doc_id);
`, vecType)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create singlevec_rows table: %w", err)
	}
	return &PostgresIndex{pool: pool, dim: dim}, nil
}

func (p *PostgresIndex) Dimension() int { return p.dim }

func (p *PostgresIndex) Size() int {
	var n int
	if err := p.pool.QueryRow(context.Background(), `SELECT count(*) FROM singlevec_rows`).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (p *PostgresIndex) Add(ctx context.Context, vectors [][]float32, metadata []Record) error {
	if len(vectors) != len(metadata) {
		return &errs.InputError{Msg: "vectors and metadata length mismatch"}
	}
	if len(vectors) == 0 {
		return nil
	}
	for i, v := range vectors {
		if p.dim != 0 && len(v) != p.dim {
			return &errs.DimensionMismatchError{Expected: p.dim, Got: len(v)}
		}
		if _, err := p.pool.Exec(ctx, `
INSERT INTO singlevec_rows(doc_id, page_num, region, vec) VALUES ($1, $2, $3, $4::vector)
`, metadata[i].DocID, metadata[i].PageNum, string(metadata[i].Region), toVectorLiteral(v)); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresIndex) Search(ctx context.Context, q []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if p.dim != 0 && len(q) != p.dim {
		return nil, &errs.QueryError{Msg: "query vector dimension mismatch"}
	}
	vecLit := toVectorLiteral(q)
	rows, err := p.pool.Query(ctx, `
SELECT doc_id, page_num, region, -(vec <#> $1::vector) AS score
FROM singlevec_rows
ORDER BY vec <#> $1::vector ASC, id ASC
LIMIT $2
`, vecLit, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Hit, 0, k)
	for rows.Next() {
		var docID, region string
		var pageNum int
		var score float64
		if err := rows.Scan(&docID, &pageNum, &region, &score); err != nil {
			return nil, err
		}
		out = append(out, Hit{Record: Record{DocID: docID, PageNum: pageNum, Region: model.Region(region)}, Score: score})
	}
	return out, rows.Err()
}

func (p *PostgresIndex) RemoveByDocID(ctx context.Context, docID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM singlevec_rows WHERE doc_id = $1`, docID)
	return err
}

// Save and Load are no-ops: Postgres is itself the durable store.
func (p *PostgresIndex) Save(string) error { return nil }
func (p *PostgresIndex) Load(string) error { return nil }

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}
