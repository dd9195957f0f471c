// Package graph persists the ecosystem graph: Crate and Version nodes,
// VERSION_OF and DEPENDS_ON edges from the registry index, and INVOKES
// edges from bitcode analysis. All backends implement the same Store
// interface; every write is a MERGE so re-ingesting the same inputs leaves
// the graph unchanged.
package graph

import (
	"context"
	"io"

	"github.com/cratelab/painter/internal/crates"
	"github.com/cratelab/painter/internal/index"
)

// Dep is one declared dependency carried on a DEPENDS_ON edge.
type Dep struct {
	Name     string
	Req      string
	Features []string
	Kind     string
	Optional bool
}

// CrateVersion is the ingest unit for index data: one version plus its
// declared dependencies.
type CrateVersion struct {
	Name    string
	Version string
	Semver  crates.Semver
	Deps    []Dep
}

// Invoke is one cross-crate invocation edge from a Version to the callee's
// Crate. (Caller, Callee) is the edge identity between those endpoints.
type Invoke struct {
	Caller      string
	Callee      string
	CalleeCrate string
}

// Stats counts the graph's nodes and edges.
type Stats struct {
	Crates    int64
	Versions  int64
	VersionOf int64
	DependsOn int64
	Invokes   int64
}

// Store is the graph backend. Implementations: Neo4jStore (production),
// KuzuStore (embedded, cgo builds), MemStore (testing).
//
// Writes may be buffered; Flush forces everything pending into the store
// and must be called before reads or shutdown.
type Store interface {
	io.Closer

	// InitSchema applies uniqueness constraints and indexes. Called once
	// before any data is inserted.
	InitSchema(ctx context.Context) error

	// DropAll removes every node and edge.
	DropAll(ctx context.Context) error

	// IngestCrateVersion merges the Crate, the Version, its VERSION_OF
	// edge, and one DEPENDS_ON edge per declared dependency.
	IngestCrateVersion(ctx context.Context, cv CrateVersion) error

	// IngestInvokes merges one INVOKES edge per entry, anchored at the
	// Version identified by crate. Callee crates are merged on demand;
	// they may never have appeared in the index.
	IngestInvokes(ctx context.Context, crate crates.Crate, invokes []Invoke) error

	// SetLatest marks the given version as its crate's latest and clears
	// the flag on every sibling.
	SetLatest(ctx context.Context, name, version string) error

	// SetUnsafeCounts stores the unsafe-code counters on a Version.
	SetUnsafeCounts(ctx context.Context, crate crates.Crate, blocks, fns int) error

	// Session returns a store for one ingest worker: its own write buffer
	// over the shared connection pool. Merges are serialized per session
	// but parallel across sessions. Backends without buffering return
	// themselves.
	Session() Store

	Flush(ctx context.Context) error
	Stats(ctx context.Context) (*Stats, error)
}

// FromIndex converts an index version record into the ingest unit,
// normalizing dependency kinds.
func FromIndex(v index.VersionRecord) CrateVersion {
	cv := CrateVersion{
		Name:    v.Name,
		Version: v.Version,
		Semver:  v.Semver,
	}
	for _, d := range v.Deps {
		cv.Deps = append(cv.Deps, Dep{
			Name:     d.Name,
			Req:      d.Req,
			Features: d.Features,
			Kind:     index.NormalizeKind(d.Kind),
			Optional: d.Optional,
		})
	}
	return cv
}
