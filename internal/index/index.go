// Package index reads a crates.io-style registry index checkout: a sharded
// directory tree with one file per crate and one JSON object per line per
// published version. The ingest stage treats these records as the source of
// truth for crates, versions, and declared dependencies.
package index

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cratelab/painter/internal/crates"
)

// Dependency is one declared dependency of a published version.
type Dependency struct {
	Name     string   `json:"name"`
	Req      string   `json:"req"`
	Features []string `json:"features"`
	Kind     string   `json:"kind"`
	Optional bool     `json:"optional"`
}

// VersionRecord is one published version as listed in the index.
type VersionRecord struct {
	Name    string       `json:"name"`
	Version string       `json:"vers"`
	Deps    []Dependency `json:"deps"`
	Yanked  bool         `json:"yanked"`

	// Semver is parsed out of Version after decoding.
	Semver crates.Semver `json:"-"`
}

// CrateRecord groups every published version of one crate.
type CrateRecord struct {
	Name     string
	Versions []VersionRecord
}

// Reader iterates a registry index checkout rooted at Root.
type Reader struct {
	Root string
	Log  *slog.Logger
}

// NewReader returns a Reader over the given checkout.
func NewReader(root string, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{Root: root, Log: log}
}

// Each walks the index in deterministic order and calls fn once per crate.
// Malformed lines and unparseable versions are logged and skipped; a crate
// whose every line is malformed is skipped entirely.
func (r *Reader) Each(ctx context.Context, fn func(CrateRecord) error) error {
	return filepath.WalkDir(r.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() {
			if strings.HasPrefix(name, ".") && path != r.Root {
				return filepath.SkipDir
			}
			return nil
		}
		if name == "config.json" || strings.HasPrefix(name, ".") {
			return nil
		}

		rec, err := r.readCrateFile(path)
		if err != nil {
			return err
		}
		if len(rec.Versions) == 0 {
			return nil
		}
		return fn(rec)
	})
}

func (r *Reader) readCrateFile(path string) (CrateRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return CrateRecord{}, fmt.Errorf("index: open %s: %w", path, err)
	}
	defer f.Close()

	var rec CrateRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var v VersionRecord
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			r.Log.Warn("skipping malformed index line",
				"file", filepath.Base(path), "line", lineNo, "err", err)
			continue
		}
		sv, err := crates.ParseSemver(v.Version)
		if err != nil {
			r.Log.Warn("skipping unparseable version",
				"crate", v.Name, "version", v.Version)
			continue
		}
		v.Semver = sv
		rec.Name = v.Name
		rec.Versions = append(rec.Versions, v)
	}
	if err := scanner.Err(); err != nil {
		return CrateRecord{}, fmt.Errorf("index: scan %s: %w", path, err)
	}
	return rec, nil
}

// NormalizeKind maps an index kind field to the three stored values; the
// index writes null for normal dependencies.
func NormalizeKind(kind string) string {
	switch kind {
	case "build", "dev":
		return kind
	default:
		return "normal"
	}
}

// Latest returns the index of the highest non-prerelease version, or -1 if
// every version is a prerelease or yanked.
func Latest(versions []VersionRecord) int {
	best := -1
	for i, v := range versions {
		if v.Yanked || v.Semver.Prerelease() {
			continue
		}
		if best < 0 || versions[best].Semver.Compare(v.Semver) < 0 {
			best = i
		}
	}
	return best
}
