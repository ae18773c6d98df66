package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"doodledoc/internal/eval"
	"doodledoc/internal/retrieve"
)

func runEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	mode := fs.String("mode", "fast", "fast|accurate|both")
	numQueries := fs.Int("num-queries", 100, "number of pseudo-queries to generate")
	seed := fs.Int64("seed", 42, "RNG seed for pseudo-query generation")
	saveBaseline := fs.Bool("save-baseline", false, "save this run's result as the new baseline")
	checkRegression := fs.Bool("check-regression", false, "compare this run's recall@10 against the saved baseline")
	regressionThreshold := fs.Float64("regression-threshold", 0, "override the default 0.05 regression threshold")
	configPath := fs.String("config", "", "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var modes []retrieve.Mode
	switch *mode {
	case "fast":
		modes = []retrieve.Mode{retrieve.ModeFast}
	case "accurate":
		modes = []retrieve.Mode{retrieve.ModeAccurate}
	case "both":
		modes = []retrieve.Mode{retrieve.ModeFast, retrieve.ModeAccurate}
	default:
		return fmt.Errorf("invalid --mode %q: want fast|accurate|both", *mode)
	}

	cfg := loadConfig(*configPath)
	ctx := context.Background()

	b, err := buildBundle(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	engine := retrieve.New(b.single, b.multi, b.text, b.meta, b.singleEmbed, b.multiEmbed,
		retrieve.WithLogger(b.log),
		retrieve.WithMetrics(b.metrics),
		retrieve.WithStage1TopK(cfg.Stage1TopK),
		retrieve.WithRegionOverlap(cfg.RegionOverlapPct),
		retrieve.WithTextBoostWeight(cfg.TextBoostWeight),
		retrieve.WithEnableTextBoost(cfg.EnableTextBoost),
		retrieve.WithRenderedPageLoader(b.pages),
	)

	queryDir := filepath.Join(cfg.DataDir, "eval", "pseudo_queries", "queries")
	queries, err := eval.GenerateQueries(ctx, b.meta, b.pages, *numQueries, *seed, queryDir)
	if err != nil {
		return fmt.Errorf("generate pseudo-queries: %w", err)
	}
	if len(queries) == 0 {
		fmt.Println("no indexed pages available; nothing to evaluate")
		return nil
	}

	resultsDir := filepath.Join(cfg.DataDir, "eval", "results")
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return err
	}

	var regressed bool
	for _, m := range modes {
		result, err := eval.Run(ctx, engine, queries, m, b.log)
		if err != nil {
			return fmt.Errorf("run eval (%s): %w", m, err)
		}
		printResult(result)

		resultPath := filepath.Join(resultsDir, strconv.FormatInt(time.Now().Unix(), 10)+"_"+string(m)+".json")
		if err := eval.SaveBaseline(resultPath, result); err != nil {
			return fmt.Errorf("write eval result: %w", err)
		}

		baselinePath := filepath.Join(resultsDir, "baseline_"+string(m)+".json")
		if *saveBaseline {
			if err := eval.SaveBaseline(baselinePath, result); err != nil {
				return fmt.Errorf("save baseline: %w", err)
			}
		}
		if *checkRegression {
			baseline, err := eval.LoadBaseline(baselinePath)
			if err != nil {
				return fmt.Errorf("load baseline (%s): %w", m, err)
			}
			report := eval.CompareRegression(baseline, result, *regressionThreshold)
			fmt.Println(report.String())
			if report.Regressed {
				regressed = true
			}
		}
	}

	if regressed {
		return fmt.Errorf("regression detected")
	}
	return nil
}

func printResult(r eval.Result) {
	fmt.Printf("mode=%s queries=%d mrr=%.4f p50=%s p95=%s mean=%s\n",
		r.Mode, r.NumQueries, r.MRR, r.LatencyP50, r.LatencyP95, r.LatencyMean)
	for _, k := range []int{1, 5, 10, 20} {
		fmt.Printf("  recall@%d = %.4f\n", k, r.RecallAtK[k])
	}
}
