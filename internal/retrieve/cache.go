package retrieve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache is a read-through cache for Search results, keyed on the
// sketch content plus the parts of Query that affect the answer. It is
// optional: a nil *ResultCache (or one built over a disabled config) makes
// Engine behave exactly as if caching were absent.
type ResultCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewResultCache builds a Redis-backed cache when addr is non-empty;
// returns nil when disabled, letting callers pass the result straight to
// WithCache without a branch at the call site.
func NewResultCache(addr string, ttlSeconds int) (*ResultCache, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect result cache: %w", err)
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ResultCache{client: client, ttl: ttl}, nil
}

// Close releases the underlying Redis connection pool.
func (c *ResultCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

type cachedEntry struct {
	Results []Result `json:"results"`
}

// key derives a cache key from the sketch image content and the parts of a
// Query that change the ranked answer: mode, top_k, and the text query.
func (c *ResultCache) key(q Query) (string, error) {
	h := sha256.New()
	if err := png.Encode(h, q.Sketch); err != nil {
		return "", fmt.Errorf("hash sketch: %w", err)
	}
	sketchHash := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("doodledoc:search:%s:%s:%d:%s", sketchHash, q.Mode, q.TopK, q.Text), nil
}

// Get returns a cached result set for q, if present and still fresh.
func (c *ResultCache) Get(ctx context.Context, q Query) ([]Result, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	key, err := c.key(q)
	if err != nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var entry cachedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	return entry.Results, true
}

// Set stores results for q, expiring after the configured TTL.
func (c *ResultCache) Set(ctx context.Context, q Query, results []Result) {
	if c == nil || c.client == nil {
		return
	}
	key, err := c.key(q)
	if err != nil {
		return
	}
	data, err := json.Marshal(cachedEntry{Results: results})
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, data, c.ttl).Err()
}
