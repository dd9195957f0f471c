// Package symbols demangles linker symbols and classifies them by owning
// crate. The demangler is a pure function; the classifier layers the noise
// filter and a small cache on top, since the same runtime symbols appear in
// nearly every module of an ecosystem-wide run.
package symbols

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Symbol is a demangled function name together with its owning crate.
type Symbol struct {
	Crate string
	Name  string
}

// DefaultBlocklist rejects the compiler runtime, the standard library
// family, and compiler-generated shims. Matching is substring-based over the
// whole demangled name: a generic instantiated with a std type is runtime
// plumbing just as much as a direct std call.
var DefaultBlocklist = []string{
	"llvm.",
	"__rust",
	"rt::",
	"std::",
	"core::",
	"alloc::",
}

// Classifier demangles symbols and decides which ones belong in the call
// graph. Safe for concurrent use.
type Classifier struct {
	blocklist []string
	cache     *lru.Cache[string, cached]
}

type cached struct {
	sym Symbol
	ok  bool
}

// Option configures a Classifier.
type Option func(*options)

type options struct {
	blocklist []string
	cacheSize int
}

// WithBlocklist replaces the default noise filter. Studies that want
// standard-library edges can pass a narrower list.
func WithBlocklist(patterns []string) Option {
	return func(o *options) { o.blocklist = patterns }
}

// WithCacheSize overrides the classification cache capacity.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// NewClassifier builds a Classifier with the default blocklist unless
// overridden.
func NewClassifier(opts ...Option) *Classifier {
	o := options{blocklist: DefaultBlocklist, cacheSize: 16384}
	for _, opt := range opts {
		opt(&o)
	}
	cache, _ := lru.New[string, cached](o.cacheSize)
	return &Classifier{blocklist: o.blocklist, cache: cache}
}

// Classify demangles a mangled symbol and returns its owning crate and
// readable name. The second return is false for noise: intrinsics,
// blocklisted paths, unreadable symbols, and symbols with no extractable
// crate.
func (c *Classifier) Classify(mangled string) (Symbol, bool) {
	if hit, ok := c.cache.Get(mangled); ok {
		return hit.sym, hit.ok
	}
	sym, ok := c.classify(mangled)
	c.cache.Add(mangled, cached{sym: sym, ok: ok})
	return sym, ok
}

func (c *Classifier) classify(mangled string) (Symbol, bool) {
	if strings.HasPrefix(mangled, IntrinsicPrefix) {
		return Symbol{}, false
	}
	name, err := Demangle(mangled)
	if err != nil {
		return Symbol{}, false
	}
	for _, blocked := range c.blocklist {
		if strings.Contains(name, blocked) {
			return Symbol{}, false
		}
	}
	crate, ok := CrateOf(name)
	if !ok {
		return Symbol{}, false
	}
	return Symbol{Crate: crate, Name: name}, true
}
