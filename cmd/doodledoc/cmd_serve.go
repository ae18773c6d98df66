package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"

	"doodledoc/internal/httpapi"
	"doodledoc/internal/ingest"
	"doodledoc/internal/retrieve"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	host := fs.String("host", "", "listen host, overrides config")
	port := fs.Int("port", 0, "listen port, overrides config")
	configPath := fs.String("config", "", "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig(*configPath)
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}

	ctx := context.Background()
	b, err := buildBundle(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	coordinator := ingest.New(b.renderer, b.single, b.multi, b.text, b.meta, b.singleEmbed, b.multiEmbed, cfg.DataDir,
		ingest.WithLogger(b.log),
		ingest.WithMetrics(b.metrics),
		ingest.WithMaxPagesPerDoc(cfg.MaxPagesPerDoc),
		ingest.WithRenderDPI(cfg.RenderDPI),
		ingest.WithRegionOverlap(cfg.RegionOverlapPct),
		ingest.WithMultiVector(cfg.EnableMultiVector),
	)

	engine := retrieve.New(b.single, b.multi, b.text, b.meta, b.singleEmbed, b.multiEmbed,
		retrieve.WithLogger(b.log),
		retrieve.WithMetrics(b.metrics),
		retrieve.WithStage1TopK(cfg.Stage1TopK),
		retrieve.WithRegionOverlap(cfg.RegionOverlapPct),
		retrieve.WithTextBoostWeight(cfg.TextBoostWeight),
		retrieve.WithEnableTextBoost(cfg.EnableTextBoost),
		retrieve.WithRenderedPageLoader(b.pages),
		retrieve.WithCache(b.cache),
	)

	service := httpapi.NewService(coordinator, engine, b.meta, b.single, b.multi, b.pages, b.log)
	server := httpapi.NewServer(service, b.log)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	b.log.Info("listening", map[string]any{"addr": addr})
	return http.ListenAndServe(addr, server)
}
