package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cratelab/painter/internal/analysis"
	"github.com/cratelab/painter/internal/crates"
	"github.com/cratelab/painter/internal/graph"
	"github.com/cratelab/painter/internal/ir"
	"github.com/cratelab/painter/internal/orchestrator"
	"github.com/cratelab/painter/internal/symbols"
)

var exportAllFlags struct {
	db        dbFlags
	sources   string
	artifacts string
}

var exportAllCmd = &cobra.Command{
	Use:   "export-all-neo4j",
	Short: "Analyze every bitcode artifact and ingest invocation edges",
	Long: `Walks the artifact tree, extracts cross-crate invocation edges from
each crate version's IR into a calls.csv sidecar, and merges the edges into
the graph store. Re-running against the same artifacts changes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := slog.Default()

		store, err := openStore(ctx, exportAllFlags.db)
		if err != nil {
			return err
		}
		defer store.Close()

		var opts []symbols.Option
		if len(cfg.Blocklist) > 0 {
			opts = append(opts, symbols.WithBlocklist(cfg.Blocklist))
		}
		analyzer := analysis.NewAnalyzer(
			symbols.NewClassifier(opts...),
			ir.NewLoader(cfg.MaxModuleBytes, cfg.LLVMMajor),
			cfg.KeepIntraEdges,
		)

		orch := orchestrator.New("analyze", cfg.Workers, log)
		drainProgress(orch, log)

		runErr := orch.Run(ctx, exportAllFlags.artifacts,
			func(ctx context.Context, dir string, crate crates.Crate) error {
				report, err := analyzer.AnalyzeCrate(ctx, dir, crate)
				if err != nil {
					return err
				}
				orch.Counters.Edges.Add(int64(report.Edges))
				orch.Counters.LostEdges.Add(int64(report.LostEdges))

				edges, err := analysis.ReadSidecar(dir)
				if err != nil {
					return err
				}

				session := store.Session()
				if err := session.IngestInvokes(ctx, crate, toInvokes(crate, edges)); err != nil {
					return err
				}
				if err := session.Flush(ctx); err != nil {
					return err
				}
				if cfg.DeleteBitcode {
					removeArtifacts(dir, log)
				}
				return nil
			})

		writeLedger(orch, filepath.Join(exportAllFlags.artifacts, "analysis-failures.json"), log)
		if runErr != nil {
			return runErr
		}
		if err := store.Flush(ctx); err != nil {
			return err
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		log.Info("invocation ingest complete", "invokes", stats.Invokes,
			"lost_edges", orch.Counters.LostEdges.Load())
		return nil
	},
}

// removeArtifacts deletes the IR files of an exported crate, keeping the
// sidecar and report.
func removeArtifacts(dir string, log *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		switch filepath.Ext(entry.Name()) {
		case ".bc", ".ll":
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				log.Warn("could not delete artifact", "path", entry.Name(), "err", err)
			}
		}
	}
}

// toInvokes converts sidecar records to graph edges. Intra-crate edges may
// be present when the sidecar keeps them for offline studies; they stay
// out of the graph.
func toInvokes(crate crates.Crate, edges []analysis.Edge) []graph.Invoke {
	out := make([]graph.Invoke, 0, len(edges))
	for _, e := range edges {
		if e.CalleeCrate == crate.Name {
			continue
		}
		out = append(out, graph.Invoke{
			Caller:      e.Caller,
			Callee:      e.Callee,
			CalleeCrate: e.CalleeCrate,
		})
	}
	return out
}

func init() {
	rootCmd.AddCommand(exportAllCmd)
	exportAllFlags.db.register(exportAllCmd)
	exportAllCmd.Flags().StringVarP(&exportAllFlags.sources, "sources", "s", "", "root of unpacked crate sources")
	exportAllCmd.Flags().StringVarP(&exportAllFlags.artifacts, "bytecodes", "b", "", "root of bitcode artifacts")
	exportAllCmd.MarkFlagRequired("bytecodes")
}
