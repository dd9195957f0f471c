package orchestrator

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/cratelab/painter/internal/crates"
)

// Failure is one ledger entry. Name, version, and phase identify the item
// precisely enough for an operator to replay just the failed work.
type Failure struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Phase   string `json:"phase"`
	Reason  string `json:"reason"`
}

// Ledger collects per-item failures across workers.
type Ledger struct {
	mu      sync.Mutex
	entries []Failure
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Add records one failure.
func (l *Ledger) Add(crate crates.Crate, phase, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Failure{
		Name:    crate.Name,
		Version: crate.Version,
		Phase:   phase,
		Reason:  reason,
	})
}

// Entries returns a copy of the recorded failures.
func (l *Ledger) Entries() []Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Failure, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded failures.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// WriteJSON dumps the ledger to path, one array of entries.
func (l *Ledger) WriteJSON(path string) error {
	data, err := json.MarshalIndent(l.Entries(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
