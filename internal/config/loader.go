package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load builds a Config by starting from Defaults(), layering a YAML file
// (if path is non-empty) on top, then applying environment variable
// overrides (via a .env file if present). Environment variables win.
func Load(path string) (Config, error) {
	// Overload so a local .env deterministically controls dev runs.
	_ = godotenv.Overload()

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_RENDER_DPI")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RenderDPI = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_MAX_PAGES_PER_DOC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPagesPerDoc = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_STAGE1_TOP_K")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stage1TopK = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_DEFAULT_RESULT_K")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultResultK = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_TEXT_BOOST_WEIGHT")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TextBoostWeight = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_ENABLE_TEXT_BOOST")); v != "" {
		cfg.EnableTextBoost = parseBool(v, cfg.EnableTextBoost)
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_ENABLE_MULTI_VECTOR")); v != "" {
		cfg.EnableMultiVector = parseBool(v, cfg.EnableMultiVector)
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_SINGLE_VECTOR_BACKEND")); v != "" {
		cfg.SingleVector.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_DSN")); v != "" {
		cfg.SingleVector.QdrantDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); v != "" {
		cfg.SingleVector.PostgresDSN = v
		cfg.MetadataStore.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_METADATA_BACKEND")); v != "" {
		cfg.MetadataStore.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_OBJECTSTORE_BACKEND")); v != "" {
		cfg.ObjectStore.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("AWS_S3_BUCKET")); v != "" {
		cfg.ObjectStore.Bucket = v
	}
	if v := strings.TrimSpace(os.Getenv("AWS_REGION")); v != "" {
		cfg.ObjectStore.Region = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Cache.Enabled = true
		cfg.Cache.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Events.Enabled = true
		cfg.Events.Brokers = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv("CLICKHOUSE_DSN")); v != "" {
		cfg.EvalSink.Enabled = true
		cfg.EvalSink.DSN = v
	}

	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_RENDERER_URL")); v != "" {
		cfg.Renderer.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_SINGLE_EMBEDDER_URL")); v != "" {
		cfg.SingleEmbed.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("DOODLEDOC_MULTI_EMBEDDER_URL")); v != "" {
		cfg.MultiEmbed.URL = v
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
