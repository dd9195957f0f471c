package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cratelab/painter/internal/crates"
	"github.com/cratelab/painter/internal/orchestrator"
	"github.com/cratelab/painter/internal/unsafestats"
)

var countUnsafeFlags struct {
	db      dbFlags
	sources string
}

var countUnsafeCmd = &cobra.Command{
	Use:   "count-unsafe",
	Short: "Count unsafe code per crate version and store the totals",
	Long: `Parses every crate's Rust sources, counts unsafe blocks and unsafe
functions, and writes the counters onto the matching Version nodes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := slog.Default()

		store, err := openStore(ctx, countUnsafeFlags.db)
		if err != nil {
			return err
		}
		defer store.Close()

		orch := orchestrator.New("unsafe", cfg.Workers, log)
		drainProgress(orch, log)

		runErr := orch.Run(ctx, countUnsafeFlags.sources,
			func(ctx context.Context, dir string, crate crates.Crate) error {
				stats, err := unsafestats.CountDir(dir)
				if err != nil {
					return err
				}
				session := store.Session()
				if err := session.SetUnsafeCounts(ctx, crate, stats.UnsafeBlocks, stats.UnsafeFns); err != nil {
					return err
				}
				return session.Flush(ctx)
			})
		if runErr != nil {
			return runErr
		}
		return store.Flush(ctx)
	},
}

func init() {
	rootCmd.AddCommand(countUnsafeCmd)
	countUnsafeFlags.db.register(countUnsafeCmd)
	countUnsafeCmd.Flags().StringVarP(&countUnsafeFlags.sources, "sources", "s", "", "root of unpacked crate sources")
	countUnsafeCmd.MarkFlagRequired("sources")
}
