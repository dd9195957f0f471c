package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratelab/painter/internal/crates"
)

func barVersion() CrateVersion {
	return CrateVersion{
		Name:    "bar",
		Version: "1.2.3",
		Semver:  crates.Semver{Major: 1, Minor: 2, Patch: 3},
	}
}

func fooVersion() CrateVersion {
	return CrateVersion{
		Name:    "foo",
		Version: "0.1.0",
		Semver:  crates.Semver{Minor: 1},
		Deps: []Dep{
			{Name: "bar", Req: "^1.2", Features: []string{"std"}, Kind: "normal"},
		},
	}
}

func TestIngestCrateVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	require.NoError(t, m.IngestCrateVersion(ctx, fooVersion()))

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	// The dependency target crate is merged on demand.
	assert.Equal(t, int64(2), stats.Crates)
	assert.Equal(t, int64(1), stats.Versions)
	assert.Equal(t, int64(1), stats.VersionOf)
	assert.Equal(t, int64(1), stats.DependsOn)

	crate, ok := m.CrateOfVersion("foo", "0.1.0")
	require.True(t, ok)
	assert.Equal(t, "foo", crate, "VERSION_OF must target the crate with the version's name")
}

func TestIngestInvokes(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	require.NoError(t, m.IngestCrateVersion(ctx, barVersion()))
	require.NoError(t, m.IngestCrateVersion(ctx, fooVersion()))

	edge := Invoke{Caller: "foo::main", Callee: "bar::baz", CalleeCrate: "bar"}
	require.NoError(t, m.IngestInvokes(ctx, crates.Crate{Name: "foo", Version: "0.1.0"}, []Invoke{edge}))

	got := m.InvokesFrom("foo", "0.1.0")
	require.Len(t, got, 1)
	assert.Equal(t, edge, got[0])
}

func TestIngestInvokesUnknownVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	// MATCH semantics: no Version node, no edge. Invocation edges only ever
	// hang off versions the index produced.
	err := m.IngestInvokes(ctx, crates.Crate{Name: "ghost", Version: "9.9.9"},
		[]Invoke{{Caller: "a", Callee: "b", CalleeCrate: "bar"}})
	require.NoError(t, err)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Invokes)
}

func TestIngestInvokesMergesCalleeCrate(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	require.NoError(t, m.IngestCrateVersion(ctx, fooVersion()))

	// The callee crate never appeared in the index; MERGE creates it.
	require.NoError(t, m.IngestInvokes(ctx, crates.Crate{Name: "foo", Version: "0.1.0"},
		[]Invoke{{Caller: "foo::main", Callee: "mystery::f", CalleeCrate: "mystery"}}))
	assert.True(t, m.HasCrate("mystery"))
}

// Re-ingesting the same inputs must leave every count unchanged.
func TestIngestIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	ingest := func() {
		require.NoError(t, m.IngestCrateVersion(ctx, barVersion()))
		require.NoError(t, m.IngestCrateVersion(ctx, fooVersion()))
		require.NoError(t, m.IngestInvokes(ctx, crates.Crate{Name: "foo", Version: "0.1.0"}, []Invoke{
			{Caller: "foo::main", Callee: "bar::baz", CalleeCrate: "bar"},
			{Caller: "foo::main", Callee: "bar::quux", CalleeCrate: "bar"},
		}))
		require.NoError(t, m.SetLatest(ctx, "bar", "1.2.3"))
	}

	ingest()
	first, err := m.Stats(ctx)
	require.NoError(t, err)

	ingest()
	second, err := m.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(2), second.Invokes, "distinct (caller, callee) pairs stay distinct")
}

func TestSetLatest(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	require.NoError(t, m.SetLatest(ctx, "bar", "1.2.3"))
	require.NoError(t, m.SetLatest(ctx, "bar", "1.3.0"))

	v, ok := m.LatestOf("bar")
	require.True(t, ok)
	assert.Equal(t, "1.3.0", v, "latest flag moves, it does not accumulate")
}

func TestSetUnsafeCounts(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	require.NoError(t, m.IngestCrateVersion(ctx, fooVersion()))

	require.NoError(t, m.SetUnsafeCounts(ctx, crates.Crate{Name: "foo", Version: "0.1.0"}, 3, 1))
	// Unknown versions are a silent no-op, matching MATCH semantics.
	require.NoError(t, m.SetUnsafeCounts(ctx, crates.Crate{Name: "ghost", Version: "1.0.0"}, 1, 1))
	assert.Equal(t, [2]int{3, 1}, m.unsafeCnt[versionKey("foo", "0.1.0")])
	assert.NotContains(t, m.unsafeCnt, versionKey("ghost", "1.0.0"))
}

func TestSessionReturnsSelf(t *testing.T) {
	m := NewMemStore()
	assert.Same(t, m, m.Session().(*MemStore))
}

func TestDropAll(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	require.NoError(t, m.IngestCrateVersion(ctx, fooVersion()))
	require.NoError(t, m.DropAll(ctx))

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{}, stats)
}
