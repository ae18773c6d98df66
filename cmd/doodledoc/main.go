// Command doodledoc is the CLI front end for the handwritten-notebook page
// retrieval system: index a directory of PDFs, serve the HTTP API, or run
// the offline evaluation harness. See doodledoc -h for subcommands.
package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"doodledoc/internal/config"
	"doodledoc/internal/embed"
	"doodledoc/internal/ingest"
	"doodledoc/internal/logging"
	"doodledoc/internal/metadatastore"
	"doodledoc/internal/multivec"
	"doodledoc/internal/obs"
	"doodledoc/internal/objectstore"
	"doodledoc/internal/retrieve"
	"doodledoc/internal/singlevec"
	"doodledoc/internal/textindex"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "index":
		err = runIndex(args)
	case "serve":
		err = runServe(args)
	case "eval":
		err = runEval(args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "doodledoc:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: doodledoc <command> [flags]

commands:
  index <path> [--force] [--config path.yaml]     ingest PDFs under path
  serve [--host host] [--port port] [--config]    run the HTTP API
  eval [--mode fast|accurate|both] [--num-queries] [--seed]
       [--save-baseline] [--check-regression] [--regression-threshold]
       [--config path.yaml]`)
}

// bundle holds every constructed backing component a subcommand needs.
// Built once per process invocation; lifetimes are tied to it rather than
// to package-level globals.
type bundle struct {
	cfg    config.Config
	log    logging.Logger
	metrics obs.Metrics

	meta   metadatastore.Store
	single singlevec.Index
	multi  multivec.Store
	text   textindex.Index

	singleEmbed embed.SingleVectorEmbedder
	multiEmbed  embed.MultiVectorEmbedder
	renderer    ingest.PageRenderer
	pageWriter  ingest.RenderedPageWriter
	pages       retrieve.RenderedPageLoader
	cache       *retrieve.ResultCache

	closers []func() error
}

func (b *bundle) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func buildBundle(ctx context.Context, cfg config.Config) (*bundle, error) {
	b := &bundle{cfg: cfg, log: logging.New("doodledoc")}

	shutdownMeter := obs.SetupMeterProvider(ctx, b.log, 60*time.Second)
	b.closers = append(b.closers, func() error { return shutdownMeter(context.Background()) })
	b.metrics = obs.NewOtelMetrics()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	meta, closeMeta, err := buildMetadataStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.meta = meta
	if closeMeta != nil {
		b.closers = append(b.closers, closeMeta)
	}

	single, err := buildSingleVecIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.single = single
	indexDir := filepath.Join(cfg.DataDir, "index")
	if _, statErr := os.Stat(filepath.Join(indexDir, "vectors.bin")); statErr == nil {
		if err := single.Load(indexDir); err != nil {
			return nil, fmt.Errorf("load single-vector index: %w", err)
		}
	}

	b.multi = multivec.NewDiskStore(filepath.Join(cfg.DataDir, "colqwen"))
	if manifestDir := filepath.Join(cfg.DataDir, "colqwen"); dirExists(manifestDir) {
		_ = b.multi.Load(manifestDir)
	}

	b.text = textindex.NewBM25Index()
	bm25Dir := filepath.Join(cfg.DataDir, "index", "bm25")
	if dirExists(bm25Dir) {
		_ = b.text.Load(bm25Dir)
	}

	b.singleEmbed = buildSingleEmbedder(cfg)
	b.multiEmbed = buildMultiEmbedder(cfg)
	b.renderer = buildRenderer(cfg)

	pages, writer, err := buildPageStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.pages = pages
	b.pageWriter = writer

	if cfg.Cache.Enabled {
		cache, err := retrieve.NewResultCache(cfg.Cache.RedisAddr, cfg.Cache.TTLSeconds)
		if err != nil {
			return nil, fmt.Errorf("connect result cache: %w", err)
		}
		b.cache = cache
		b.closers = append(b.closers, cache.Close)
	}

	return b, nil
}

func buildMetadataStore(ctx context.Context, cfg config.Config) (metadatastore.Store, func() error, error) {
	switch cfg.MetadataStore.Backend {
	case "", "sqlite":
		path := filepath.Join(cfg.DataDir, "index", "metadata.sqlite")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, err
		}
		st, err := metadatastore.NewSQLiteStore(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite metadata store: %w", err)
		}
		return st, st.Close, nil
	case "postgres":
		st, err := metadatastore.NewPostgresStore(ctx, cfg.MetadataStore.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres metadata store: %w", err)
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown metadata_store backend %q", cfg.MetadataStore.Backend)
	}
}

func buildSingleVecIndex(ctx context.Context, cfg config.Config) (singlevec.Index, error) {
	switch cfg.SingleVector.Backend {
	case "", "flat":
		return singlevec.NewFlatIndex(), nil
	case "qdrant":
		return singlevec.NewQdrantIndex(cfg.SingleVector.QdrantDSN, cfg.SingleVector.QdrantCollection, cfg.EmbeddingDim)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.SingleVector.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres single-vector backend: %w", err)
		}
		return singlevec.NewPostgresIndex(ctx, pool, cfg.EmbeddingDim)
	default:
		return nil, fmt.Errorf("unknown single_vector backend %q", cfg.SingleVector.Backend)
	}
}

func buildSingleEmbedder(cfg config.Config) embed.SingleVectorEmbedder {
	if cfg.SingleEmbed.URL == "" {
		return embed.NewDeterministicSingle(cfg.EmbeddingDim, 1)
	}
	return embed.NewHTTPSingle(embed.HTTPConfig{
		URL:      cfg.SingleEmbed.URL,
		Model:    cfg.SingleEmbed.Model,
		Dim:      cfg.EmbeddingDim,
		MinDelay: msToDuration(cfg.SingleEmbed.MinDelayMs),
	})
}

func buildMultiEmbedder(cfg config.Config) embed.MultiVectorEmbedder {
	if !cfg.EnableMultiVector {
		return nil
	}
	if cfg.MultiEmbed.URL == "" {
		return embed.NewDeterministicMulti(cfg.MultiVectorDim, 2, 16)
	}
	return embed.NewHTTPMulti(embed.HTTPConfig{
		URL:      cfg.MultiEmbed.URL,
		Model:    cfg.MultiEmbed.Model,
		Dim:      cfg.MultiVectorDim,
		MinDelay: msToDuration(cfg.MultiEmbed.MinDelayMs),
	})
}

func buildRenderer(cfg config.Config) ingest.PageRenderer {
	if cfg.Renderer.URL == "" {
		return nil
	}
	return ingest.NewHTTPRenderer(cfg.Renderer.URL, msToDuration(cfg.Renderer.MinDelayMs))
}

// diskPages serves rendered pages directly off local disk, the default
// storage for spec's rendered/{doc_id}/{page_num}.png layout.
type diskPages struct {
	dataDir string
}

func (d diskPages) LoadRenderedPage(_ context.Context, docID string, pageNum int) (image.Image, error) {
	path := filepath.Join(d.dataDir, "rendered", docID, strconv.Itoa(pageNum)+".png")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func buildPageStorage(ctx context.Context, cfg config.Config) (retrieve.RenderedPageLoader, ingest.RenderedPageWriter, error) {
	switch cfg.ObjectStore.Backend {
	case "", "disk":
		dp := diskPages{dataDir: cfg.DataDir}
		return dp, nil, nil // nil writer => ingest.New falls back to its own local disk writer
	case "s3":
		store, err := objectstore.NewS3Store(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, nil, fmt.Errorf("connect s3 object store: %w", err)
		}
		loader := objectstore.NewPageLoader(store)
		return loader, loader, nil
	default:
		return nil, nil, fmt.Errorf("unknown object_store backend %q", cfg.ObjectStore.Backend)
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func loadConfig(configPath string) config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "doodledoc: load config:", err)
		os.Exit(1)
	}
	return cfg
}
