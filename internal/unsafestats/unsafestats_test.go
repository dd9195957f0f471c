package unsafestats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   Stats
	}{
		{
			"safe code only",
			`fn main() { println!("hi"); }`,
			Stats{},
		},
		{
			"unsafe block",
			`fn read(p: *const u8) -> u8 { unsafe { *p } }`,
			Stats{UnsafeBlocks: 1},
		},
		{
			"unsafe fn",
			`pub unsafe fn poke(p: *mut u8) { *p = 0; }`,
			Stats{UnsafeFns: 1},
		},
		{
			"both, nested",
			`unsafe fn inner() {}
fn outer() {
	unsafe {
		inner();
		unsafe { inner(); }
	}
}`,
			Stats{UnsafeBlocks: 2, UnsafeFns: 1},
		},
		{
			"unsafe in trait declaration",
			`trait T { unsafe fn f(&self); }`,
			Stats{UnsafeFns: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Count([]byte(tt.source))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "lib.rs"),
		[]byte("pub unsafe fn a() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "util.rs"),
		[]byte("pub fn b(p: *const u8) -> u8 { unsafe { *p } }\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"),
		[]byte("unsafe { not rust }"), 0o644))

	got, err := CountDir(dir)
	require.NoError(t, err)
	assert.Equal(t, Stats{UnsafeBlocks: 1, UnsafeFns: 1}, got)
}
