package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"doodledoc/internal/ingest"
	"doodledoc/internal/obs"
)

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	force := fs.Bool("force", false, "reindex even if the content hash is already known")
	watch := fs.Bool("watch", false, "keep running and re-index when new PDFs appear under path")
	configPath := fs.String("config", "", "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: doodledoc index <path> [--force] [--config path.yaml]")
	}
	rootPath := fs.Arg(0)

	cfg := loadConfig(*configPath)
	ctx := context.Background()

	b, err := buildBundle(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := []ingest.Option{
		ingest.WithLogger(b.log),
		ingest.WithMetrics(b.metrics),
		ingest.WithMaxPagesPerDoc(cfg.MaxPagesPerDoc),
		ingest.WithRenderDPI(cfg.RenderDPI),
		ingest.WithRegionOverlap(cfg.RegionOverlapPct),
		ingest.WithMultiVector(cfg.EnableMultiVector),
	}
	if b.pageWriter != nil {
		opts = append(opts, ingest.WithRenderedPageWriter(b.pageWriter))
	}
	coordinator := ingest.New(b.renderer, b.single, b.multi, b.text, b.meta, b.singleEmbed, b.multiEmbed, cfg.DataDir, opts...)

	sink := obs.ProgressFunc(func(p obs.Progress) {
		switch p.Status {
		case obs.StatusDiscovering:
			fmt.Fprintln(os.Stdout, "discovering PDFs...")
		case obs.StatusIndexing:
			fmt.Fprintf(os.Stdout, "\rindexing: %d/%d docs, %d/%d pages", p.DocsDone, p.DocsTotal, p.PagesDone, p.PagesTotal)
		case obs.StatusCompleted:
			fmt.Fprintf(os.Stdout, "\ndone: %d docs, %d pages\n", p.DocsDone, p.PagesDone)
		}
	})

	runOnce := func(ctx context.Context) error {
		result, err := coordinator.Ingest(ctx, rootPath, *force, sink)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		fmt.Printf("indexed %d/%d documents, %d/%d pages, status=%s\n",
			result.DocsDone, result.DocsTotal, result.PagesDone, result.PagesTotal, result.Status)
		return nil
	}

	if *watch || cfg.Watch.Enabled {
		return watchAndReingest(ctx, rootPath, runOnce)
	}
	return runOnce(ctx)
}
