package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cratelab/painter/internal/graph"
	"github.com/cratelab/painter/internal/index"
)

var createDBFlags struct {
	db        dbFlags
	indexPath string
}

var createDBCmd = &cobra.Command{
	Use:   "create-fresh-db",
	Short: "Drop the graph and rebuild it from the registry index",
	Long: `Connects to the graph store, drops all existing data, applies the
uniqueness constraints and indexes, and ingests every crate, version,
VERSION_OF edge, and DEPENDS_ON edge the registry index lists. Each crate's
highest non-prerelease version is flagged latest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore(ctx, createDBFlags.db)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DropAll(ctx); err != nil {
			return err
		}
		if err := store.InitSchema(ctx); err != nil {
			return err
		}

		log := slog.Default()
		reader := index.NewReader(createDBFlags.indexPath, log)

		var crateCount, versionCount int
		err = reader.Each(ctx, func(rec index.CrateRecord) error {
			for _, v := range rec.Versions {
				if err := store.IngestCrateVersion(ctx, graph.FromIndex(v)); err != nil {
					return err
				}
			}
			if i := index.Latest(rec.Versions); i >= 0 {
				if err := store.SetLatest(ctx, rec.Name, rec.Versions[i].Version); err != nil {
					return err
				}
			}
			crateCount++
			versionCount += len(rec.Versions)
			if crateCount%10000 == 0 {
				log.Info("index ingest", "crates", crateCount, "versions", versionCount)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("index ingest: %w", err)
		}
		if err := store.Flush(ctx); err != nil {
			return err
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		log.Info("index ingest complete",
			"crates", stats.Crates, "versions", stats.Versions,
			"depends_on", stats.DependsOn)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createDBCmd)
	createDBFlags.db.register(createDBCmd)
	createDBCmd.Flags().StringVarP(&createDBFlags.indexPath, "index", "i", "crates.io-index",
		"path to a registry index checkout")
}
