// Package orchestrator fans a per-crate work function out over a directory
// tree of {name}-{version} subdirectories. Items are independent: a failed
// item lands in the failure ledger and the run continues.
package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cratelab/painter/internal/crates"
)

// WorkFunc processes one crate-version directory.
type WorkFunc func(ctx context.Context, dir string, crate crates.Crate) error

// Item is one unit of work: a crate-version directory.
type Item struct {
	Dir   string
	Crate crates.Crate
}

// Orchestrator runs a phase over every crate directory under a root with a
// fixed-size worker pool.
type Orchestrator struct {
	phase    string
	workers  int
	log      *slog.Logger
	reporter *Reporter

	// ProgressEvery controls how often the counter summary is logged.
	ProgressEvery time.Duration

	Counters *Counters
	Ledger   *Ledger
}

// New builds an Orchestrator for one phase. workers <= 0 sizes the pool to
// the hardware.
func New(phase string, workers int, log *slog.Logger) *Orchestrator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		phase:         phase,
		workers:       workers,
		log:           log,
		reporter:      NewReporter(),
		ProgressEvery: 10 * time.Second,
		Counters:      &Counters{},
		Ledger:        NewLedger(),
	}
}

// Reporter exposes the progress event stream.
func (o *Orchestrator) Reporter() *Reporter {
	return o.reporter
}

// ListItems enumerates the crate-version subdirectories of root in sorted
// order. Directories whose names do not parse are skipped with a warning
// and counted.
func (o *Orchestrator) ListItems(root string) ([]Item, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var items []Item
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		crate, err := crates.ParseFullname(entry.Name())
		if err != nil {
			o.log.Warn("skipping directory", "dir", entry.Name(), "phase", o.phase, "err", err)
			o.Counters.Skipped.Add(1)
			continue
		}
		items = append(items, Item{Dir: filepath.Join(root, entry.Name()), Crate: crate})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Dir < items[j].Dir })
	return items, nil
}

// Run processes every item under root. On cancellation no new items are
// handed out; in-flight items finish their current step, then the status
// log is flushed. The returned error is the context's error on
// cancellation, nil otherwise: per-item failures live in the Ledger.
func (o *Orchestrator) Run(ctx context.Context, root string, fn WorkFunc) error {
	items, err := o.ListItems(root)
	if err != nil {
		return err
	}
	o.log.Info("starting", "phase", o.phase, "items", len(items), "workers", o.workers)

	stopProgress := o.startProgressLog(ctx)
	defer stopProgress()

	g := new(errgroup.Group)
	g.SetLimit(o.workers)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			o.runOne(ctx, item, fn)
			return nil
		})
	}
	g.Wait()

	o.flushStatus()
	return ctx.Err()
}

func (o *Orchestrator) runOne(ctx context.Context, item Item, fn WorkFunc) {
	o.reporter.Emit(Event{Crate: item.Crate, Phase: o.phase, Status: StatusWorking})

	if err := fn(ctx, item.Dir, item.Crate); err != nil {
		if ctx.Err() != nil && err == ctx.Err() {
			return
		}
		o.Counters.Failed.Add(1)
		o.Ledger.Add(item.Crate, o.phase, err.Error())
		o.reporter.Emit(Event{Crate: item.Crate, Phase: o.phase, Status: StatusFailed, Message: err.Error()})
		o.log.Warn("item failed",
			"crate", item.Crate.Name, "version", item.Crate.Version, "phase", o.phase, "err", err)
		return
	}

	o.Counters.Done.Add(1)
	o.reporter.Emit(Event{Crate: item.Crate, Phase: o.phase, Status: StatusDone})
}

// startProgressLog logs the counter snapshot periodically until the
// returned stop function is called.
func (o *Orchestrator) startProgressLog(ctx context.Context) func() {
	if o.ProgressEvery <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(o.ProgressEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := o.Counters.Snapshot()
				o.log.Info("progress", "phase", o.phase,
					"done", s.Done, "failed", s.Failed, "skipped", s.Skipped,
					"edges", s.Edges, "lost", s.LostEdges)
			}
		}
	}()
	return func() { close(done) }
}

// flushStatus writes the final summary.
func (o *Orchestrator) flushStatus() {
	s := o.Counters.Snapshot()
	o.log.Info("finished", "phase", o.phase,
		"done", s.Done, "failed", s.Failed, "skipped", s.Skipped,
		"edges", s.Edges, "lost", s.LostEdges)
}
