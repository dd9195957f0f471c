package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cratelab/painter/internal/compile"
	"github.com/cratelab/painter/internal/crates"
	"github.com/cratelab/painter/internal/orchestrator"
)

var compileAllFlags struct {
	sources   string
	artifacts string
}

var compileAllCmd = &cobra.Command{
	Use:   "compile-all",
	Short: "Compile every crate in the source tree to LLVM bitcode",
	Long: `Walks the source tree of {name}-{version} directories and builds each
crate with flags that keep cross-crate calls visible in the emitted IR.
Build failures are recorded in a ledger and never stop the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := slog.Default()

		driver := compile.NewDriver(cfg.Toolchain, log)
		orch := orchestrator.New("build", cfg.Workers, log)
		drainProgress(orch, log)

		runErr := orch.Run(ctx, compileAllFlags.sources,
			func(ctx context.Context, dir string, crate crates.Crate) error {
				_, err := driver.Build(ctx, dir, compileAllFlags.artifacts)
				var buildErr *compile.BuildError
				if errors.As(err, &buildErr) {
					return fmt.Errorf("build failed: %s", compile.Reason(buildErr.Output))
				}
				return err
			})

		writeLedger(orch, filepath.Join(compileAllFlags.artifacts, "build-failures.json"), log)
		return runErr
	},
}

// drainProgress logs progress events at debug level so the buffered
// channel never fills up.
func drainProgress(orch *orchestrator.Orchestrator, log *slog.Logger) {
	go func() {
		for event := range orch.Reporter().Subscribe() {
			log.Debug(orchestrator.Format(event))
		}
	}()
}

// writeLedger persists the failure ledger next to the artifacts when
// anything failed.
func writeLedger(orch *orchestrator.Orchestrator, path string, log *slog.Logger) {
	if orch.Ledger.Len() == 0 {
		return
	}
	if err := orch.Ledger.WriteJSON(path); err != nil {
		log.Warn("could not write failure ledger", "path", path, "err", err)
		return
	}
	log.Info("failure ledger written", "path", path, "failures", orch.Ledger.Len())
}

func init() {
	rootCmd.AddCommand(compileAllCmd)
	compileAllCmd.Flags().StringVarP(&compileAllFlags.sources, "sources", "s", "", "root of unpacked crate sources")
	compileAllCmd.Flags().StringVarP(&compileAllFlags.artifacts, "bytecodes", "b", "", "root for bitcode artifacts")
	compileAllCmd.MarkFlagRequired("sources")
	compileAllCmd.MarkFlagRequired("bytecodes")
}
