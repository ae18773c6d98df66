// Package config defines the process-wide configuration struct.
package config

// SingleVectorConfig selects and configures the C2 single-vector backend.
type SingleVectorConfig struct {
	// Backend is one of "flat" (default, in-process exhaustive scan),
	// "qdrant", or "postgres" (pgvector).
	Backend          string `yaml:"backend"`
	QdrantDSN        string `yaml:"qdrant_dsn,omitempty"`
	QdrantCollection string `yaml:"qdrant_collection,omitempty"`
	PostgresDSN      string `yaml:"postgres_dsn,omitempty"`
}

// MetadataStoreConfig selects and configures the C5 metadata backend.
type MetadataStoreConfig struct {
	// Backend is one of "sqlite" (default) or "postgres".
	Backend     string `yaml:"backend"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// ObjectStoreConfig selects and configures the blob backend used for
// rendered page images and multi-vector patch blobs.
type ObjectStoreConfig struct {
	// Backend is one of "disk" (default) or "s3".
	Backend      string `yaml:"backend"`
	Bucket       string `yaml:"bucket,omitempty"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	Prefix       string `yaml:"prefix,omitempty"`
	AccessKey    string `yaml:"access_key,omitempty"`
	SecretKey    string `yaml:"secret_key,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
}

// CacheConfig configures the optional Redis-backed query-result cache.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	RedisAddr  string `yaml:"redis_addr,omitempty"`
	TTLSeconds int    `yaml:"ttl_seconds,omitempty"`
}

// EventsConfig configures the optional Kafka mirror of progress events.
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// EvalSinkConfig configures the optional ClickHouse sink for evaluation
// results, alongside the always-on JSON files under data/eval/results/.
type EvalSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn,omitempty"`
}

// WatchConfig configures the optional fsnotify-driven ingest directory
// watch mode.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EmbedderConfig configures one of the two embedding capabilities (single-
// vector or multi-vector). When URL is empty, the deterministic in-process
// embedder is used instead — useful for tests and for running the pipeline
// before a model-serving endpoint exists.
type EmbedderConfig struct {
	URL      string `yaml:"url,omitempty"`
	Model    string `yaml:"model,omitempty"`
	MinDelayMs int  `yaml:"min_delay_ms,omitempty"`
}

// RendererConfig configures the PDF page rasterizer. When URL is empty, no
// renderer is wired and ingest fails fast with an InputError.
type RendererConfig struct {
	URL        string `yaml:"url,omitempty"`
	MinDelayMs int    `yaml:"min_delay_ms,omitempty"`
}

// Config is the single process-wide configuration struct. It is loaded once
// at startup from YAML plus environment overrides; there is no hot reload.
type Config struct {
	// Core pipeline tunables (spec-mandated).
	RenderDPI        int     `yaml:"render_dpi"`
	MaxPagesPerDoc   int     `yaml:"max_pages_per_doc"`
	ClaheClipLimit   float64 `yaml:"clahe_clip_limit"`
	ClaheGridSize    int     `yaml:"clahe_grid_size"`
	EmbeddingDim     int     `yaml:"embedding_dim"`
	MultiVectorDim   int     `yaml:"multi_vector_dim"`
	Stage1TopK       int     `yaml:"stage1_top_k"`
	DefaultResultK   int     `yaml:"default_result_k"`
	RerankBatchSize  int     `yaml:"rerank_batch_size"`
	EnableTextBoost  bool    `yaml:"enable_text_boost"`
	TextBoostWeight  float64 `yaml:"text_boost_weight"`
	RegionOverlapPct float64 `yaml:"region_overlap_pct"`
	DataDir          string  `yaml:"data_dir"`

	// EnableMultiVector toggles whether the multi-vector (C3) channel is
	// populated during ingestion at all.
	EnableMultiVector bool `yaml:"enable_multi_vector"`

	// Domain-stack backend selection, additive to the spec-mandated core.
	SingleVector  SingleVectorConfig  `yaml:"single_vector"`
	MetadataStore MetadataStoreConfig `yaml:"metadata_store"`
	ObjectStore   ObjectStoreConfig   `yaml:"object_store"`
	Cache         CacheConfig         `yaml:"cache"`
	Events        EventsConfig        `yaml:"events"`
	EvalSink      EvalSinkConfig      `yaml:"eval_sink"`
	Watch         WatchConfig         `yaml:"watch"`

	// External model-serving collaborators (spec's "assumed to provide"
	// interfaces: a rasterizer, a single-vector embedder, a multi-vector
	// embedder).
	Renderer     RendererConfig `yaml:"renderer"`
	SingleEmbed  EmbedderConfig `yaml:"single_embedder"`
	MultiEmbed   EmbedderConfig `yaml:"multi_embedder"`

	// HTTP surface.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Defaults returns the configuration defaults, matching the values the
// system this spec was distilled from used.
func Defaults() Config {
	return Config{
		RenderDPI:         150,
		MaxPagesPerDoc:    500,
		ClaheClipLimit:    2.0,
		ClaheGridSize:     8,
		EmbeddingDim:      1152,
		MultiVectorDim:    128,
		Stage1TopK:        100,
		DefaultResultK:    20,
		RerankBatchSize:   8,
		EnableTextBoost:   true,
		TextBoostWeight:   0.3,
		RegionOverlapPct:  0.10,
		DataDir:           "data",
		EnableMultiVector: true,
		SingleVector:      SingleVectorConfig{Backend: "flat"},
		MetadataStore:     MetadataStoreConfig{Backend: "sqlite"},
		ObjectStore:       ObjectStoreConfig{Backend: "disk"},
		Host:              "127.0.0.1",
		Port:              8080,
	}
}
