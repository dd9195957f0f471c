package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyAccepted(t *testing.T) {
	c := NewClassifier()

	sym, ok := c.Classify("_ZN3foo4main17h0123456789abcdefE")
	require.True(t, ok)
	assert.Equal(t, Symbol{Crate: "foo", Name: "foo::main"}, sym)
}

func TestClassifyNoise(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name    string
		mangled string
	}{
		{"intrinsic", "llvm.memcpy.p0i8.p0i8.i64"},
		{"std", "_ZN3std2io5stdio6_print17h0123456789abcdefE"},
		{"core", "_ZN4core3fmt9Arguments6new_v117h0123456789abcdefE"},
		{"alloc", "_ZN5alloc7raw_vec11finish_grow17h0123456789abcdefE"},
		{"rust runtime", "__rust_alloc"},
		{"lang start shim", "_ZN3std2rt10lang_start17h0123456789abcdefE"},
		{"unreadable", "memcpy"},
		{"plain main", "main"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := c.Classify(tt.mangled)
			assert.False(t, ok)
		})
	}
}

// A widened blocklist keeps std edges for studies that want them.
func TestClassifyWidenedInclusion(t *testing.T) {
	c := NewClassifier(WithBlocklist([]string{IntrinsicPrefix, "__rust"}))

	sym, ok := c.Classify("_ZN3std2io5stdio6_print17h0123456789abcdefE")
	require.True(t, ok)
	assert.Equal(t, "std", sym.Crate)
}

func TestClassifyCached(t *testing.T) {
	c := NewClassifier(WithCacheSize(8))

	first, ok1 := c.Classify("_ZN3foo4main17h0123456789abcdefE")
	second, ok2 := c.Classify("_ZN3foo4main17h0123456789abcdefE")
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)

	// Negative results are cached too.
	_, miss1 := c.Classify("not-a-symbol")
	_, miss2 := c.Classify("not-a-symbol")
	assert.False(t, miss1)
	assert.False(t, miss2)
}
