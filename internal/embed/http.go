package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"sync"
	"time"
)

// HTTPConfig configures an HTTP-backed embedder. The server is expected to
// accept one PNG-encoded image per request and return that image's
// embedding as JSON; batch calls send one such request per image.
type HTTPConfig struct {
	URL        string
	Model      string
	Dim        int
	MinDelay   time.Duration
	HTTPClient *http.Client
}

// httpSingle is an HTTP-client SingleVectorEmbedder. It serializes calls
// with a minimum delay between requests, the same defensive pattern the
// text embedding client uses against servers that crash under concurrent
// batched inference.
type httpSingle struct {
	cfg HTTPConfig
	mu  sync.Mutex
	last time.Time
}

// NewHTTPSingle constructs a SingleVectorEmbedder that calls an external
// image-embedding endpoint over HTTP.
func NewHTTPSingle(cfg HTTPConfig) SingleVectorEmbedder {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &httpSingle{cfg: cfg}
}

func (h *httpSingle) Dimension() int { return h.cfg.Dim }

func (h *httpSingle) EmbedOne(ctx context.Context, img image.Image) ([]float32, error) {
	vecs, err := h.EmbedBatch(ctx, []image.Image{img})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed: server returned no vectors")
	}
	return vecs[0], nil
}

func (h *httpSingle) EmbedBatch(ctx context.Context, imgs []image.Image) ([][]float32, error) {
	out := make([][]float32, 0, len(imgs))
	for _, img := range imgs {
		v, err := h.callOne(ctx, img)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (h *httpSingle) callOne(ctx context.Context, img image.Image) ([]float32, error) {
	h.mu.Lock()
	if !h.last.IsZero() {
		if elapsed := time.Since(h.last); elapsed < h.cfg.MinDelay {
			time.Sleep(h.cfg.MinDelay - elapsed)
		}
	}
	h.last = time.Now()
	h.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/png")
	if h.cfg.Model != "" {
		req.Header.Set("X-Model", h.cfg.Model)
	}
	resp, err := h.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed server returned status %d", resp.StatusCode)
	}
	var v []float32
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return v, nil
}

// httpMulti is an HTTP-client MultiVectorEmbedder, mirroring httpSingle but
// decoding a P x D2 matrix instead of a single vector.
type httpMulti struct {
	cfg HTTPConfig
	mu  sync.Mutex
	last time.Time
}

// NewHTTPMulti constructs a MultiVectorEmbedder that calls an external
// patch-embedding endpoint over HTTP.
func NewHTTPMulti(cfg HTTPConfig) MultiVectorEmbedder {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &httpMulti{cfg: cfg}
}

func (h *httpMulti) Dimension() int { return h.cfg.Dim }

func (h *httpMulti) EmbedOne(ctx context.Context, img image.Image) ([][]float32, error) {
	h.mu.Lock()
	if !h.last.IsZero() {
		if elapsed := time.Since(h.last); elapsed < h.cfg.MinDelay {
			time.Sleep(h.cfg.MinDelay - elapsed)
		}
	}
	h.last = time.Now()
	h.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/png")
	resp, err := h.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed server returned status %d", resp.StatusCode)
	}
	var matrix [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&matrix); err != nil {
		return nil, fmt.Errorf("decode patch matrix: %w", err)
	}
	return matrix, nil
}
