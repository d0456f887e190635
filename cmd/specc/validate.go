package main

import (
	"github.com/spf13/cobra"

	"github.com/specc-dev/specc/internal/compiler"
)

var validateCmd = &cobra.Command{
	Use:   "validate <project-dir>",
	Short: "Parse documents and check the graph without deriving",
	Long: `Run the parse and graph stages plus the constitution check, without
regenerating any document. Unresolved clarification markers are reported
as warnings; pass --strict to escalate them to errors for gating.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runPipeline(compiler.ModeValidate, args[0])
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
