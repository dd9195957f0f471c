package compile

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

func TestDriverArgs(t *testing.T) {
	d := NewDriver("", slog.Default())
	args := d.args()
	assert.Contains(t, args, "--emit=llvm-bc,llvm-ir")
	assert.Contains(t, args, "lto=off")
	assert.Contains(t, args, "inline-threshold=0")
	assert.NotContains(t, args, "+")

	pinned := NewDriver("1.67", slog.Default())
	assert.Equal(t, "+1.67", pinned.args()[0])
}

// fakeCargo writes a stub cargo script so Build can be exercised without a
// Rust toolchain.
func fakeCargo(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cargo")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func sourceDir(t *testing.T, fullname string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), fullname)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func TestBuildSuccess(t *testing.T) {
	src := sourceDir(t, "foo-0.1.0")
	artifacts := t.TempDir()

	d := NewDriver("", slog.Default())
	// The stub emits one .bc and one .ll under target/, like cargo would.
	d.CargoBin = fakeCargo(t, `mkdir -p target/release/deps
printf '\102\103\300\336' > target/release/deps/foo.bc
echo 'define void @f() { ret void }' > target/release/deps/foo.ll
`)

	got, err := d.Build(context.Background(), src, artifacts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(artifacts, "foo-0.1.0"), got)

	for _, name := range []string{"foo.bc", "foo.ll"} {
		_, err := os.Stat(filepath.Join(got, name))
		assert.NoError(t, err, name)
	}
}

func TestBuildFailure(t *testing.T) {
	src := sourceDir(t, "foo-0.1.0")

	d := NewDriver("", slog.Default())
	d.CargoBin = fakeCargo(t, `echo 'error[E0433]: failed to resolve' >&2
exit 101
`)

	_, err := d.Build(context.Background(), src, t.TempDir())
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, crates.Crate{Name: "foo", Version: "0.1.0"}, buildErr.Crate)
	assert.Contains(t, buildErr.Output, "E0433")
}

func TestBuildNoArtifacts(t *testing.T) {
	src := sourceDir(t, "foo-0.1.0")

	d := NewDriver("", slog.Default())
	d.CargoBin = fakeCargo(t, "exit 0\n")

	_, err := d.Build(context.Background(), src, t.TempDir())
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Contains(t, buildErr.Output, "no IR artifacts")
}

func TestBuildBadDirName(t *testing.T) {
	src := sourceDir(t, "notaversion")

	d := NewDriver("", slog.Default())
	_, err := d.Build(context.Background(), src, t.TempDir())
	assert.Error(t, err)
}

func TestReason(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			"error line wins",
			"   Compiling foo v0.1.0\nerror[E0433]: failed to resolve\nwarning: x\n",
			"error[E0433]: failed to resolve",
		},
		{
			"falls back to last line",
			"   Compiling foo v0.1.0\nlinker exited with status 1\n",
			"linker exited with status 1",
		},
		{"empty", "\n\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.output))
		})
	}
}
