// Package analysis turns one crate version's IR artifacts into a
// deduplicated set of cross-crate invocation edges, persisted as a sidecar
// next to the artifacts.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cratelab/painter/internal/crates"
	"github.com/cratelab/painter/internal/ir"
	"github.com/cratelab/painter/internal/symbols"
)

// Edge is one surviving invocation: a function of the analyzed crate
// calling into another crate.
type Edge struct {
	Caller      string
	Callee      string
	CalleeCrate string
}

// Report summarizes one crate version's analysis. LostEdges is part of the
// output contract, not a debug aid: it tells consumers how much of the call
// graph indirect dispatch swallowed.
type Report struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Modules      int    `json:"modules"`
	Edges        int    `json:"edges"`
	LostEdges    int    `json:"lost_edges"`
	DroppedNoise int    `json:"dropped_noise"`
	DroppedIntra int    `json:"dropped_intra"`
	TooLarge     int    `json:"too_large,omitempty"`
}

// Analyzer applies the IR walker and the symbol classifier to crate
// artifact directories.
type Analyzer struct {
	classifier *symbols.Classifier
	loader     *ir.Loader
	// keepIntra persists intra-crate edges in the sidecar for offline
	// studies. They never reach the graph either way.
	keepIntra bool
}

// NewAnalyzer wires an Analyzer from its two collaborators.
func NewAnalyzer(classifier *symbols.Classifier, loader *ir.Loader, keepIntra bool) *Analyzer {
	return &Analyzer{classifier: classifier, loader: loader, keepIntra: keepIntra}
}

// AnalyzeCrate loads every IR module under artifactDir, extracts the
// surviving edge set for the given crate, and writes the calls.csv sidecar
// and report.json. A crate with zero surviving edges still gets an empty
// sidecar, marking it analyzed. A module that fails to parse fails the
// whole crate; oversized modules are skipped and counted instead.
func (a *Analyzer) AnalyzeCrate(ctx context.Context, artifactDir string, crate crates.Crate) (*Report, error) {
	paths, err := moduleArtifacts(artifactDir)
	if err != nil {
		return nil, err
	}

	report := &Report{Name: crate.Name, Version: crate.Version}
	var raw []ir.CallSite

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := a.loader.Load(ctx, path)
		if errors.Is(err, ir.ErrTooLarge) {
			report.TooLarge++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("analysis: %s: %w", crate, err)
		}
		sites, stats := ir.WalkCalls(m)
		raw = append(raw, sites...)
		report.Modules++
		report.LostEdges += stats.LostEdges
	}

	edges := a.filter(raw, crate.Name, report)
	report.Edges = len(edges)

	if err := WriteSidecar(artifactDir, edges); err != nil {
		return nil, fmt.Errorf("analysis: %s: %w", crate, err)
	}
	if err := WriteReport(artifactDir, report); err != nil {
		return nil, fmt.Errorf("analysis: %s: %w", crate, err)
	}
	return report, nil
}

// filter classifies both ends of every raw call site and keeps the
// cross-crate edges emitted by the crate's own code, deduplicated.
func (a *Analyzer) filter(raw []ir.CallSite, crateName string, report *Report) []Edge {
	seen := make(map[Edge]struct{})
	var edges []Edge

	for _, site := range raw {
		caller, ok := a.classifier.Classify(site.Caller)
		if !ok {
			report.DroppedNoise++
			continue
		}
		callee, ok := a.classifier.Classify(site.Callee)
		if !ok {
			report.DroppedNoise++
			continue
		}
		// Only edges emitted by this crate's own code count as its
		// invocations; rustc folds monomorphized dependency code into the
		// same module.
		if caller.Crate != crateName {
			report.DroppedNoise++
			continue
		}
		if callee.Crate == crateName {
			report.DroppedIntra++
			if !a.keepIntra {
				continue
			}
		}
		edge := Edge{Caller: caller.Name, Callee: callee.Name, CalleeCrate: callee.Crate}
		if _, dup := seen[edge]; dup {
			continue
		}
		seen[edge] = struct{}{}
		edges = append(edges, edge)
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Caller != edges[j].Caller {
			return edges[i].Caller < edges[j].Caller
		}
		if edges[i].Callee != edges[j].Callee {
			return edges[i].Callee < edges[j].Callee
		}
		return edges[i].CalleeCrate < edges[j].CalleeCrate
	})
	return edges
}

// moduleArtifacts lists the IR files of an artifact directory in sorted
// order. When a .bc and a .ll share a basename the .ll wins, so analysis
// does not depend on llvm-dis being installed.
func moduleArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("analysis: read %s: %w", dir, err)
	}

	ll := make(map[string]bool)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".ll" {
			ll[strings.TrimSuffix(e.Name(), ".ll")] = true
		}
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".ll":
			paths = append(paths, filepath.Join(dir, e.Name()))
		case ".bc":
			if !ll[strings.TrimSuffix(e.Name(), ".bc")] {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}
