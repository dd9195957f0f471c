package orchestrator

import "sync/atomic"

// Counters holds the status counters shared between workers. Every field is
// atomic, so updating them takes no lock. (The failure ledger is the other
// state workers share; it is guarded by its own mutex.)
type Counters struct {
	Done      atomic.Int64
	Failed    atomic.Int64
	Skipped   atomic.Int64
	Edges     atomic.Int64
	LostEdges atomic.Int64
}

// Snapshot is a point-in-time copy for logging.
type Snapshot struct {
	Done      int64
	Failed    int64
	Skipped   int64
	Edges     int64
	LostEdges int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Done:      c.Done.Load(),
		Failed:    c.Failed.Load(),
		Skipped:   c.Skipped.Load(),
		Edges:     c.Edges.Load(),
		LostEdges: c.LostEdges.Load(),
	}
}
