package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratelab/painter/internal/crates"
)

func writeIndexFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, root string) map[string]CrateRecord {
	t.Helper()
	r := NewReader(root, slog.Default())
	out := map[string]CrateRecord{}
	err := r.Each(context.Background(), func(rec CrateRecord) error {
		out[rec.Name] = rec
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestEach(t *testing.T) {
	root := t.TempDir()
	writeIndexFile(t, root, "3/b/bar",
		`{"name":"bar","vers":"1.2.3","deps":[],"yanked":false}`+"\n")
	writeIndexFile(t, root, "fo/oo/foo",
		`{"name":"foo","vers":"0.1.0","deps":[{"name":"bar","req":"^1.2","features":["std"],"kind":"normal","optional":false}],"yanked":false}`+"\n"+
			`{"name":"foo","vers":"0.2.0","deps":[],"yanked":true}`+"\n")
	writeIndexFile(t, root, "config.json", `{"dl":"https://example.com"}`)

	got := collect(t, root)
	require.Len(t, got, 2)

	foo := got["foo"]
	require.Len(t, foo.Versions, 2)
	assert.Equal(t, "0.1.0", foo.Versions[0].Version)
	assert.Equal(t, crates.Semver{Minor: 1}, foo.Versions[0].Semver)
	require.Len(t, foo.Versions[0].Deps, 1)
	assert.Equal(t, Dependency{
		Name: "bar", Req: "^1.2", Features: []string{"std"}, Kind: "normal",
	}, foo.Versions[0].Deps[0])
	assert.True(t, foo.Versions[1].Yanked)
}

func TestEachSkipsMalformed(t *testing.T) {
	root := t.TempDir()
	writeIndexFile(t, root, "fo/oo/foo",
		"not json at all\n"+
			`{"name":"foo","vers":"bogus-version"}`+"\n"+
			`{"name":"foo","vers":"0.1.0","deps":[]}`+"\n")

	got := collect(t, root)
	require.Len(t, got, 1)
	require.Len(t, got["foo"].Versions, 1)
	assert.Equal(t, "0.1.0", got["foo"].Versions[0].Version)
}

func TestEachSkipsHiddenDirs(t *testing.T) {
	root := t.TempDir()
	writeIndexFile(t, root, ".git/objects/aa", "garbage")
	writeIndexFile(t, root, "3/b/bar", `{"name":"bar","vers":"1.0.0","deps":[]}`+"\n")

	got := collect(t, root)
	require.Len(t, got, 1)
	assert.Contains(t, got, "bar")
}

func TestNormalizeKind(t *testing.T) {
	assert.Equal(t, "normal", NormalizeKind(""))
	assert.Equal(t, "normal", NormalizeKind("normal"))
	assert.Equal(t, "build", NormalizeKind("build"))
	assert.Equal(t, "dev", NormalizeKind("dev"))
}

func TestLatest(t *testing.T) {
	mk := func(version string, yanked bool) VersionRecord {
		sv, err := crates.ParseSemver(version)
		require.NoError(t, err)
		return VersionRecord{Version: version, Semver: sv, Yanked: yanked}
	}

	tests := []struct {
		name     string
		versions []VersionRecord
		want     int
	}{
		{"highest wins", []VersionRecord{mk("0.1.0", false), mk("1.0.0", false), mk("0.9.9", false)}, 1},
		{"prerelease skipped", []VersionRecord{mk("1.0.0", false), mk("2.0.0-rc.1", false)}, 0},
		{"yanked skipped", []VersionRecord{mk("1.0.0", false), mk("2.0.0", true)}, 0},
		{"all prerelease", []VersionRecord{mk("1.0.0-beta", false)}, -1},
		{"empty", nil, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Latest(tt.versions))
		})
	}
}
