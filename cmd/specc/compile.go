package main

import (
	"github.com/spf13/cobra"

	"github.com/specc-dev/specc/internal/compiler"
)

var compileCmd = &cobra.Command{
	Use:   "compile <project-dir>",
	Short: "Run the full pipeline and write derived documents",
	Long: `Parse all documents, build the reference graph, re-derive plan.yml and
tasks.yml from the specification, and check the constitution.

Derivation is merge-aware: author overrides survive, plan items covering
removed requirements are flagged orphaned instead of deleted, and
re-running against unchanged input produces byte-identical output.
Derived files are only written when the run reports no errors.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runPipeline(compiler.ModeCompile, args[0])
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)
}
