package eval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseSink persists eval Results for long-term trend queries across
// many runs, alongside the JSON result files the spec mandates on disk.
// It is optional: the harness runs fully without one configured.
type ClickHouseSink struct {
	conn  clickhouse.Conn
	table string
}

// NewClickHouseSink connects to dsn and ensures the results table exists.
// An empty dsn returns a nil sink and nil error, the same "absent config is
// a no-op" convention the rest of the codebase uses for optional backends.
func NewClickHouseSink(ctx context.Context, dsn, table string) (*ClickHouseSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	if table == "" {
		table = "doodledoc_eval_results"
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts DateTime,
		mode String,
		num_queries UInt32,
		recall_1 Float64,
		recall_5 Float64,
		recall_10 Float64,
		recall_20 Float64,
		mrr Float64,
		latency_p50_ms Float64,
		latency_p95_ms Float64,
		latency_mean_ms Float64
	) ENGINE = MergeTree() ORDER BY ts`, table)
	if err := conn.Exec(ctxTimeout, schema); err != nil {
		return nil, fmt.Errorf("ensure eval results table: %w", err)
	}

	return &ClickHouseSink{conn: conn, table: table}, nil
}

// Write inserts one eval Result as a row.
func (s *ClickHouseSink) Write(ctx context.Context, result Result) error {
	if s == nil {
		return nil
	}
	stmt := fmt.Sprintf(`INSERT INTO %s
		(ts, mode, num_queries, recall_1, recall_5, recall_10, recall_20, mrr, latency_p50_ms, latency_p95_ms, latency_mean_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	return s.conn.Exec(ctx, stmt,
		result.Timestamp, string(result.Mode), uint32(result.NumQueries),
		result.RecallAtK[1], result.RecallAtK[5], result.RecallAtK[10], result.RecallAtK[20],
		result.MRR,
		float64(result.LatencyP50.Microseconds())/1000.0,
		float64(result.LatencyP95.Microseconds())/1000.0,
		float64(result.LatencyMean.Microseconds())/1000.0,
	)
}

// Close releases the underlying connection.
func (s *ClickHouseSink) Close() error {
	if s == nil {
		return nil
	}
	return s.conn.Close()
}
