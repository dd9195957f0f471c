// Package crates holds the naming conventions shared by the compile and
// analysis stages: every crate version lives in a directory named
// "{name}-{version}", and the version half must parse as a (possibly
// sloppy) semantic version.
package crates

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Crate identifies one published crate version on disk.
type Crate struct {
	Name    string
	Version string
}

// Fullname returns the canonical "{name}-{version}" directory name.
func (c Crate) Fullname() string {
	return c.Name + "-" + c.Version
}

func (c Crate) String() string {
	return c.Fullname()
}

// ParseFullname splits a "{name}-{version}" directory name on its last dash,
// so crate names may themselves contain dashes. A version that contains a
// dash (a prerelease such as "4.0.0-rc.1") is split at that inner dash, and
// the name keeps the rest of the version.
func ParseFullname(fullname string) (Crate, error) {
	i := strings.LastIndex(fullname, "-")
	if i <= 0 || i == len(fullname)-1 {
		return Crate{}, fmt.Errorf("crates: %q is not a name-version directory", fullname)
	}
	return Crate{Name: fullname[:i], Version: fullname[i+1:]}, nil
}

// Semver holds the parsed components of a version string.
type Semver struct {
	Major uint64
	Minor uint64
	Patch uint64
	Pre   string
	Build string
}

// ParseSemver parses a version string, first strictly and then leniently.
// The registry contains a handful of malformed versions (trailing junk on
// the patch component); those are salvaged by keeping only the digits, the
// same way the original registry tooling does.
func ParseSemver(version string) (Semver, error) {
	if v, err := semver.StrictNewVersion(version); err == nil {
		return Semver{
			Major: v.Major(),
			Minor: v.Minor(),
			Patch: v.Patch(),
			Pre:   v.Prerelease(),
			Build: v.Metadata(),
		}, nil
	}
	return salvageSemver(version)
}

// salvageSemver handles versions that strict parsing rejects, e.g. "0.3.0x".
func salvageSemver(version string) (Semver, error) {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) != 3 {
		return Semver{}, fmt.Errorf("crates: invalid semver %q", version)
	}
	var out Semver
	var err error
	if out.Major, err = parseUint(parts[0]); err != nil {
		return Semver{}, fmt.Errorf("crates: invalid semver %q", version)
	}
	if out.Minor, err = parseUint(parts[1]); err != nil {
		return Semver{}, fmt.Errorf("crates: invalid semver %q", version)
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, parts[2])
	if out.Patch, err = parseUint(digits); err != nil {
		return Semver{}, fmt.Errorf("crates: invalid semver %q", version)
	}
	return out, nil
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty component")
	}
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", r)
		}
		n = n*10 + uint64(r-'0')
	}
	return n, nil
}

// Prerelease reports whether the parsed version carries a prerelease tag.
func (s Semver) Prerelease() bool {
	return s.Pre != ""
}

// Compare orders two versions by (major, minor, patch), ignoring prerelease
// ordering rules; callers that need the full ordering should compare the
// original strings with the semver library.
func (s Semver) Compare(o Semver) int {
	switch {
	case s.Major != o.Major:
		return cmpUint(s.Major, o.Major)
	case s.Minor != o.Minor:
		return cmpUint(s.Minor, o.Minor)
	default:
		return cmpUint(s.Patch, o.Patch)
	}
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
