package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// SidecarName is the per-crate edge file: one CSV record per edge,
	// fields caller, callee, callee_crate, no header.
	SidecarName = "calls.csv"
	// ReportName is the per-crate analysis summary.
	ReportName = "report.json"
)

// WriteSidecar atomically replaces dir/calls.csv with the given edges.
// Write-to-temp plus rename keeps readers from ever observing a partial
// file.
func WriteSidecar(dir string, edges []Edge) error {
	tmp, err := os.CreateTemp(dir, SidecarName+".*")
	if err != nil {
		return fmt.Errorf("sidecar: temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	for _, e := range edges {
		if err := w.Write([]string{e.Caller, e.Callee, e.CalleeCrate}); err != nil {
			tmp.Close()
			return fmt.Errorf("sidecar: write: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("sidecar: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sidecar: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, SidecarName)); err != nil {
		return fmt.Errorf("sidecar: rename: %w", err)
	}
	return nil
}

// ReadSidecar parses dir/calls.csv back into an edge slice. An empty file
// yields an empty, non-nil slice: analyzed, zero edges.
func ReadSidecar(dir string) ([]Edge, error) {
	f, err := os.Open(filepath.Join(dir, SidecarName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3

	edges := []Edge{}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sidecar: parse %s: %w", SidecarName, err)
		}
		edges = append(edges, Edge{Caller: rec[0], Callee: rec[1], CalleeCrate: rec[2]})
	}
	return edges, nil
}

// WriteReport writes dir/report.json.
func WriteReport(dir string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ReportName), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}

// ReadReport reads dir/report.json.
func ReadReport(dir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReportName))
	if err != nil {
		return nil, err
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("report: parse: %w", err)
	}
	return &report, nil
}
