package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/specc-dev/specc/internal/cache"
	"github.com/specc-dev/specc/internal/compiler"
	"github.com/specc-dev/specc/internal/diag"
	"github.com/specc-dev/specc/internal/project"
	"github.com/specc-dev/specc/internal/rules"
)

// runPipeline discovers projects, loads the constitution, runs the
// pipeline in the given mode, renders every report, and exits with the
// worst severity encountered (0 clean, 1 compilation errors, 2 I/O).
func runPipeline(mode compiler.Mode, root string) {
	ctx := context.Background()

	projects, err := project.Discover(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ruleSet, err := rules.Load(cfg.RulesPath, root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	opts := compiler.Options{Mode: mode, Config: cfg, Rules: ruleSet}
	if cfg.CachePath != "" {
		c, err := cache.Open(cfg.CachePath)
		if err != nil {
			// The cache is an optimization: a broken cache degrades to a
			// full recompute, it never fails the run.
			fmt.Fprintf(os.Stderr, "Warning: cache disabled: %v\n", err)
		} else {
			opts.Cache = c
			defer c.Close()
		}
	}

	results := compiler.Run(ctx, projects, opts)
	renderResults(results)
	os.Exit(compiler.ExitCode(results))
}

// renderResults writes every project report in the selected format.
func renderResults(results []compiler.Result) {
	if flagFormat == "json" {
		reports := make([]*diag.Report, 0, len(results))
		for _, res := range results {
			reports = append(reports, res.Report)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return
	}

	for _, res := range results {
		res.Report.Render(os.Stdout)
	}
	fmt.Println()
}
