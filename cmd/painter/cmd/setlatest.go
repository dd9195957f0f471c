package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cratelab/painter/internal/index"
)

var setLatestFlags struct {
	db        dbFlags
	indexPath string
}

var setLatestCmd = &cobra.Command{
	Use:   "set-latest-versions",
	Short: "Recompute the latest flag on every Version",
	Long: `Walks the registry index and flags each crate's highest
non-prerelease version as latest, clearing the flag on its siblings. Useful
after an index refresh without a full database rebuild.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore(ctx, setLatestFlags.db)
		if err != nil {
			return err
		}
		defer store.Close()

		reader := index.NewReader(setLatestFlags.indexPath, slog.Default())
		flagged := 0
		err = reader.Each(ctx, func(rec index.CrateRecord) error {
			i := index.Latest(rec.Versions)
			if i < 0 {
				return nil
			}
			if err := store.SetLatest(ctx, rec.Name, rec.Versions[i].Version); err != nil {
				return err
			}
			flagged++
			return nil
		})
		if err != nil {
			return fmt.Errorf("set latest: %w", err)
		}
		if err := store.Flush(ctx); err != nil {
			return err
		}
		slog.Info("latest flags set", "crates", flagged)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setLatestCmd)
	setLatestFlags.db.register(setLatestCmd)
	setLatestCmd.Flags().StringVarP(&setLatestFlags.indexPath, "index", "i", "crates.io-index",
		"path to a registry index checkout")
}
