// Package e2e runs the analyze-then-ingest pipeline against the in-memory
// store, checking the end-to-end scenarios that single packages cannot.
package e2e

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratelab/painter/internal/analysis"
	"github.com/cratelab/painter/internal/crates"
	"github.com/cratelab/painter/internal/graph"
	"github.com/cratelab/painter/internal/index"
	"github.com/cratelab/painter/internal/ir"
	"github.com/cratelab/painter/internal/orchestrator"
	"github.com/cratelab/painter/internal/symbols"
)

// foo-0.1.0 calls bar (cross-crate), itself (intra), and core (noise).
const fooModule = `define void @_ZN3foo4main17h0123456789abcdefE() {
entry:
	call void @_ZN3bar3baz17h1111222233334444E()
	call void @_ZN3foo6helper17h5555666677778888E()
	call void @_ZN4core3fmt5write17h9999aaaabbbbccccE()
	ret void
}

define void @_ZN3foo6helper17h5555666677778888E() {
entry:
	ret void
}

declare void @_ZN3bar3baz17h1111222233334444E()
declare void @_ZN4core3fmt5write17h9999aaaabbbbccccE()
`

const fooIndexLine = `{"name":"foo","vers":"0.1.0","deps":[{"name":"bar","req":"^1.2","features":[],"kind":"normal","optional":false}]}`

const barIndexLines = `{"name":"bar","vers":"1.2.3","deps":[]}
{"name":"bar","vers":"1.3.0-rc.1","deps":[]}
`

func setupIndex(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "3", "f"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "3", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "3", "f", "foo"), []byte(fooIndexLine+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "3", "b", "bar"), []byte(barIndexLines), 0o644))
	return root
}

func setupArtifacts(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "foo-0.1.0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.ll"), []byte(fooModule), 0o644))
	// ghost-0.0.1 never built: an empty artifact dir yields an empty
	// sidecar and no edges.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ghost-0.0.1"), 0o755))
	return root
}

// ingestIndex replays create-fresh-db's ingest loop against the store.
func ingestIndex(t *testing.T, ctx context.Context, store graph.Store, indexRoot string) {
	t.Helper()
	reader := index.NewReader(indexRoot, slog.Default())
	err := reader.Each(ctx, func(rec index.CrateRecord) error {
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
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Flush(ctx))
}

// exportAll replays export-all-neo4j's analyze-and-ingest loop.
func exportAll(t *testing.T, ctx context.Context, store graph.Store, artifactsRoot string) *orchestrator.Orchestrator {
	t.Helper()
	analyzer := analysis.NewAnalyzer(symbols.NewClassifier(), ir.NewLoader(0, 0), false)
	orch := orchestrator.New("analyze", 2, slog.Default())
	orch.ProgressEvery = 0

	err := orch.Run(ctx, artifactsRoot, func(ctx context.Context, dir string, crate crates.Crate) error {
		report, err := analyzer.AnalyzeCrate(ctx, dir, crate)
		if err != nil {
			return err
		}
		orch.Counters.Edges.Add(int64(report.Edges))

		edges, err := analysis.ReadSidecar(dir)
		if err != nil {
			return err
		}
		invokes := make([]graph.Invoke, 0, len(edges))
		for _, e := range edges {
			invokes = append(invokes, graph.Invoke{
				Caller: e.Caller, Callee: e.Callee, CalleeCrate: e.CalleeCrate,
			})
		}
		session := store.Session()
		if err := session.IngestInvokes(ctx, crate, invokes); err != nil {
			return err
		}
		return session.Flush(ctx)
	})
	require.NoError(t, err)
	require.NoError(t, store.Flush(ctx))
	return orch
}

func TestPipeline(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()
	indexRoot := setupIndex(t)
	artifactsRoot := setupArtifacts(t)

	ingestIndex(t, ctx, store, indexRoot)
	exportAll(t, ctx, store, artifactsRoot)

	// Scenario A: the direct cross-crate call exists exactly once.
	invokes := store.InvokesFrom("foo", "0.1.0")
	require.Len(t, invokes, 1)
	assert.Equal(t, graph.Invoke{
		Caller:      "foo::main",
		Callee:      "bar::baz",
		CalleeCrate: "bar",
	}, invokes[0])

	// Scenario B/C: no intra-crate or std edges leaked into the graph.
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Invokes)

	// VERSION_OF targets the crate with the version's name.
	crate, ok := store.CrateOfVersion("foo", "0.1.0")
	require.True(t, ok)
	assert.Equal(t, "foo", crate)

	// The prerelease never takes the latest flag.
	latest, ok := store.LatestOf("bar")
	require.True(t, ok)
	assert.Equal(t, "1.2.3", latest)

	// Scenario E: ghost was never indexed, so its version anchors nothing.
	assert.Empty(t, store.InvokesFrom("ghost", "0.0.1"))
}

// Scenario F: a second full export changes nothing.
func TestPipelineReingest(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()
	indexRoot := setupIndex(t)
	artifactsRoot := setupArtifacts(t)

	ingestIndex(t, ctx, store, indexRoot)
	exportAll(t, ctx, store, artifactsRoot)
	first, err := store.Stats(ctx)
	require.NoError(t, err)

	exportAll(t, ctx, store, artifactsRoot)
	second, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
