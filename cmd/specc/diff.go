package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/spf13/cobra"

	"github.com/specc-dev/specc/internal/cache"
	"github.com/specc-dev/specc/internal/compiler"
	"github.com/specc-dev/specc/internal/project"
	"github.com/specc-dev/specc/internal/rules"
)

var diffCmd = &cobra.Command{
	Use:   "diff <project-dir>",
	Short: "Show what derivation would change without writing",
	Long: `Run the full pipeline and print a unified diff between each project's
current plan.yml/tasks.yml and the freshly derived versions. Nothing is
written; exit codes match compile.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		root := args[0]
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

		opts := compiler.Options{Mode: compiler.ModeDiff, Config: cfg, Rules: ruleSet}
		if cfg.CachePath != "" {
			if c, err := cache.Open(cfg.CachePath); err == nil {
				opts.Cache = c
				defer c.Close()
			}
		}

		results := compiler.Run(ctx, projects, opts)
		renderResults(results)

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		for _, res := range results {
			if res.Err != nil {
				continue
			}
			changed := false
			for _, d := range []struct {
				name       string
				prev, next []byte
			}{
				{project.PlanFilename, res.PlanPrev, res.PlanOut},
				{project.TasksFilename, res.TasksPrev, res.TasksOut},
			} {
				u := unifiedDiff(res.Project.Name+"/"+d.name, d.prev, d.next)
				if u != "" {
					changed = true
					fmt.Printf("\n%s\n%s", cyan(res.Project.Name+"/"+d.name), u)
				}
			}
			if !changed {
				fmt.Printf("\n%s %s\n", gray("·"), gray(res.Project.Name+": derivation would change nothing"))
			}
		}

		os.Exit(compiler.ExitCode(results))
	},
}

// unifiedDiff renders a unified diff between two document versions, empty
// when they are identical.
func unifiedDiff(name string, prev, next []byte) string {
	if string(prev) == string(next) {
		return ""
	}
	edits := myers.ComputeEdits(span.URIFromPath(name), string(prev), string(next))
	return fmt.Sprint(gotextdiff.ToUnified("a/"+name, "b/"+name, string(prev), edits))
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
