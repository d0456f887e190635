// Command specc compiles spec-driven project directories: it parses
// specification, plan, and task documents, builds their reference graph,
// re-derives downstream documents, and checks the constitution.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/specc-dev/specc/internal/config"
)

var (
	// Persistent flags shared by all subcommands.
	flagRules  string
	flagStrict bool
	flagFormat string

	// cfg is resolved from the environment before any command runs;
	// flags override it.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "specc",
	Short: "Specification dependency and traceability compiler",
	Long: `specc keeps feature specifications, implementation plans, and task
breakdowns consistent. It parses the three document kinds, links their
identifiers into a reference graph, re-derives plans and tasks when the
upstream specification changes, and checks the constitution rule set -
all without ever destroying authored work.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.FromEnv()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("rules") {
			cfg.RulesPath = flagRules
		}
		if cmd.Flags().Changed("strict") {
			cfg.Strict = flagStrict
		}
		if flagFormat != "text" && flagFormat != "json" {
			return fmt.Errorf("invalid format %q (expected text or json)", flagFormat)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRules, "rules", "", "constitution rule-set path (overrides SPECC_RULES_PATH)")
	rootCmd.PersistentFlags().BoolVar(&flagStrict, "strict", false, "escalate warnings to errors")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "report format: text or json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}
