package symbols

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// IntrinsicPrefix marks compiler intrinsics, which never correspond to a
// real function body and are excluded from the call graph.
const IntrinsicPrefix = "llvm."

// Demangle turns a mangled linker symbol into a readable Rust path.
//
// Two mangling schemes are in the wild: the v0 scheme ("_R...") which the
// demangle library decodes natively, and the legacy scheme which is a C++
// mangling ("_ZN...E") of dollar-escaped path segments with a trailing
// "17h<hash>" disambiguator. Legacy symbols come back from the C++ demangler
// still carrying their escapes, so they get a decoding pass afterwards.
func Demangle(mangled string) (string, error) {
	if mangled == "" {
		return "", fmt.Errorf("symbols: empty symbol")
	}
	out, err := demangle.ToString(mangled, demangle.NoParams, demangle.NoTemplateParams)
	if err != nil {
		return "", fmt.Errorf("symbols: demangle %q: %w", mangled, err)
	}
	if strings.HasPrefix(mangled, "_R") {
		return out, nil
	}
	return decodeLegacy(out), nil
}

// decodeLegacy expands the dollar escapes of the legacy scheme and strips
// the trailing hash segment. Mangled segments cannot start with '$', so a
// segment beginning "_$" carries a padding underscore that gets dropped.
func decodeLegacy(s string) string {
	parts := strings.Split(s, "::")
	for i, part := range parts {
		if strings.HasPrefix(part, "_$") {
			part = part[1:]
		}
		parts[i] = decodeSegment(part)
	}
	return stripHash(strings.Join(parts, "::"))
}

// decodeSegment decodes the escapes of one path segment. The escapes and
// the ".." separator cannot nest, so a single left-to-right scan suffices.
func decodeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch {
		case s[i] == '$':
			repl, n, ok := decodeEscape(s[i:])
			if !ok {
				b.WriteByte(s[i])
				i++
				continue
			}
			b.WriteString(repl)
			i += n
		case strings.HasPrefix(s[i:], ".."):
			b.WriteString("::")
			i += 2
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// legacyEscapes maps the fixed dollar escapes of the legacy scheme.
var legacyEscapes = map[string]string{
	"$SP$": "@",
	"$BP$": "*",
	"$RF$": "&",
	"$LT$": "<",
	"$GT$": ">",
	"$LP$": "(",
	"$RP$": ")",
	"$C$":  ",",
}

// decodeEscape decodes one "$...$" escape at the start of s. Returns the
// replacement, the number of input bytes consumed, and whether a known
// escape was found.
func decodeEscape(s string) (string, int, bool) {
	end := strings.IndexByte(s[1:], '$')
	if end < 0 {
		return "", 0, false
	}
	tok := s[:end+2]
	if repl, ok := legacyEscapes[tok]; ok {
		return repl, len(tok), true
	}
	// "$u<hex>$" encodes an arbitrary unicode scalar.
	if strings.HasPrefix(tok, "$u") {
		if n, err := strconv.ParseUint(tok[2:len(tok)-1], 16, 32); err == nil {
			return string(rune(n)), len(tok), true
		}
	}
	return "", 0, false
}

// stripHash removes a final "::h<16 hex>" path segment, the legacy scheme's
// per-instantiation disambiguator.
func stripHash(s string) string {
	i := strings.LastIndex(s, "::h")
	if i < 0 || len(s)-i-3 != 16 {
		return s
	}
	for _, r := range s[i+3:] {
		if !isHexDigit(r) {
			return s
		}
	}
	return s[:i]
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}

// CrateOf extracts the owning crate from a demangled path: the first path
// segment, with any "[disambiguator]" removed. Qualified impl paths like
// "<foo::Bar as core::ops::Fn>::call" resolve to the crate of the
// implementing type. Returns false when no crate can be extracted, e.g. for
// unpathed C symbols.
func CrateOf(demangled string) (string, bool) {
	s := demangled
	if strings.HasPrefix(s, "<") {
		s = s[1:]
		for _, prefix := range []string{"&mut ", "&", "dyn ", "*const ", "*mut "} {
			s = strings.TrimPrefix(s, prefix)
		}
	}

	sep := strings.Index(s, "::")
	if sep < 0 {
		return "", false
	}
	// A type without a path ("<Foo as bar::Baz>::quux") would make the first
	// "::" land inside the trait half; treat that as unextractable.
	if as := strings.Index(s, " as "); as >= 0 && as < sep {
		return "", false
	}
	if gt := strings.IndexByte(s, '>'); gt >= 0 && gt < sep {
		return "", false
	}

	crate := s[:sep]
	if i := strings.IndexByte(crate, '['); i >= 0 {
		crate = crate[:i]
	}
	if crate == "" || strings.ContainsAny(crate, " <>()") {
		return "", false
	}
	return crate, true
}
