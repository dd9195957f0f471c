// Package cmd wires painter's subcommands: index ingest, ecosystem-wide
// compilation, bitcode analysis and export, and the auxiliary passes.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cratelab/painter/internal/config"
)

var (
	cfgFile string
	verbose bool
	workers int

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "painter",
	Short: "Build an ecosystem-scale call graph of a crate registry",
	Long: `Painter compiles unpacked crate sources to LLVM bitcode, extracts
cross-crate invocation edges from the emitted IR, and merges them with the
registry index into a property graph of crates, versions, dependencies, and
observed invocations.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if workers != 0 {
			cfg.Workers = workers
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

// Execute runs the CLI with the given context; the context carries the
// cancel signal down to every subprocess and graph session.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./painter.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "worker pool size (default: hardware parallelism)")
}
