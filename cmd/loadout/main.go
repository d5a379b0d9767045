// Package main provides the loadout CLI:
//
//	loadout validate <file>
//	loadout plan <file>    (ordered, filtered directives; nothing executes)
//	loadout apply <file>   (executes against stub units and a ledger)
//	loadout test <file...> (runs the document's scenarios)
//	loadout schema         (exports JSON Schema)
//	loadout trace verify <trace.jsonl>
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Resolved by the root command before any subcommand runs.
var (
	cfg    *cliConfig
	logger *log.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "loadout",
	Short:         "Layered capability loadouts: compose, order, filter and apply directives",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		l, err := newLogger(c.LogLevel)
		if err != nil {
			return err
		}
		cfg, logger = c, l
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "loadout %s (%s)\n", version, commit)
	},
}

func newLogger(level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "loadout",
		Level:  lvl,
	}), nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default: ./.loadout.yaml if present)")
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")
	pf.String("layer", "", "Layer to apply (default: meta.default_layer or the last layer)")
	pf.String("trace", "", "Write an apply trace to this JSONL file")
	pf.Int("max-depth", 0, "Maximum nested generator expansion depth (default 64)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(versionCmd)
}
