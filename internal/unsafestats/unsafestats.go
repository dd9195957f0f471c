// Package unsafestats counts unsafe code in crate sources: unsafe blocks
// and unsafe fn items. The counters end up as properties on the crate's
// Version node for ecosystem-wide queries.
package unsafestats

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
)

// Stats holds the unsafe counters for one crate version.
type Stats struct {
	UnsafeBlocks int `json:"unsafe_blocks"`
	UnsafeFns    int `json:"unsafe_fns"`
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		UnsafeBlocks: s.UnsafeBlocks + o.UnsafeBlocks,
		UnsafeFns:    s.UnsafeFns + o.UnsafeFns,
	}
}

// Count parses one Rust source buffer and counts unsafe blocks and unsafe
// functions.
func Count(source []byte) (Stats, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	lang := tree_sitter.NewLanguage(tree_sitter_rust.Language())
	if err := parser.SetLanguage(lang); err != nil {
		return Stats{}, fmt.Errorf("unsafestats: set language: %w", err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return Stats{}, fmt.Errorf("unsafestats: tree-sitter returned nil tree")
	}
	defer tree.Close()

	var stats Stats
	cursor := tree.RootNode().Walk()
	defer cursor.Close()
	walk(cursor, source, &stats)
	return stats, nil
}

func walk(cursor *tree_sitter.TreeCursor, source []byte, stats *Stats) {
	node := cursor.Node()

	switch node.Kind() {
	case "unsafe_block":
		stats.UnsafeBlocks++
	case "function_item", "function_signature_item":
		if fnIsUnsafe(node, source) {
			stats.UnsafeFns++
		}
	}

	if cursor.GotoFirstChild() {
		walk(cursor, source, stats)
		for cursor.GotoNextSibling() {
			walk(cursor, source, stats)
		}
		cursor.GotoParent()
	}
}

// fnIsUnsafe checks the function's modifier list for the unsafe keyword.
func fnIsUnsafe(node *tree_sitter.Node, source []byte) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if child.Kind() == "function_modifiers" {
			return strings.Contains(child.Utf8Text(source), "unsafe")
		}
	}
	return false
}

// CountDir walks every .rs file under dir and sums the counters. Files
// that fail to read are skipped; a crate's vendored test fixtures should
// not sink the whole count.
func CountDir(dir string) (Stats, error) {
	var total Stats
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != ".rs" {
			return nil
		}
		source, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		stats, err := Count(source)
		if err != nil {
			return nil
		}
		total = total.add(stats)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("unsafestats: walk %s: %w", dir, err)
	}
	return total, nil
}
