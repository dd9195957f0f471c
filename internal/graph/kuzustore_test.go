//go:build cgo

package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratelab/painter/internal/crates"
)

func openTestKuzu(t *testing.T) *KuzuStore {
	t.Helper()
	s, err := OpenKuzu(filepath.Join(t.TempDir(), "graph.kuzu"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.InitSchema(context.Background()))
	return s
}

func TestKuzuIngestAndStats(t *testing.T) {
	ctx := context.Background()
	s := openTestKuzu(t)

	require.NoError(t, s.IngestCrateVersion(ctx, fooVersion()))
	require.NoError(t, s.IngestCrateVersion(ctx, barVersion()))
	require.NoError(t, s.IngestInvokes(ctx, crates.Crate{Name: "foo", Version: "0.1.0"}, []Invoke{
		{Caller: "foo::main", Callee: "bar::baz", CalleeCrate: "bar"},
	}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Crates)
	assert.Equal(t, int64(2), stats.Versions)
	assert.Equal(t, int64(2), stats.VersionOf)
	assert.Equal(t, int64(1), stats.DependsOn)
	assert.Equal(t, int64(1), stats.Invokes)
}

func TestKuzuIngestIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestKuzu(t)

	ingest := func() {
		require.NoError(t, s.IngestCrateVersion(ctx, fooVersion()))
		require.NoError(t, s.IngestInvokes(ctx, crates.Crate{Name: "foo", Version: "0.1.0"}, []Invoke{
			{Caller: "foo::main", Callee: "bar::baz", CalleeCrate: "bar"},
		}))
	}

	ingest()
	first, err := s.Stats(ctx)
	require.NoError(t, err)

	ingest()
	second, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
