package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/cratelab/painter/internal/crates"
)

// Compile-time check that Neo4jStore satisfies Store.
var _ Store = (*Neo4jStore)(nil)

// Neo4jOptions tunes batching and retry behavior.
type Neo4jOptions struct {
	Database  string
	BatchSize int
	Attempts  int
	BaseDelay time.Duration
}

func (o *Neo4jOptions) defaults() {
	if o.Database == "" {
		o.Database = "neo4j"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 256
	}
	if o.Attempts <= 0 {
		o.Attempts = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 250 * time.Millisecond
	}
}

// Neo4jStore implements Store against a Neo4j server. Writes are buffered
// and committed in bounded explicit transactions; each failed batch is
// retried with exponential backoff unless the failure is a constraint
// violation, which means a bug or a dirty database and is surfaced
// immediately.
//
// A Neo4jStore is not safe for concurrent use: workers participating in
// ingest each open their own store over a shared driver via Session().
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	owner  bool
	opts   Neo4jOptions
	log    *slog.Logger

	mu      sync.Mutex
	pending []statement
}

type statement struct {
	cypher string
	params map[string]any
}

// ConnectNeo4j dials the server and verifies connectivity.
func ConnectNeo4j(ctx context.Context, uri, user, pass string, opts Neo4jOptions, log *slog.Logger) (*Neo4jStore, error) {
	opts.defaults()
	if log == nil {
		log = slog.Default()
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: connect %s: %w", uri, err)
	}
	return &Neo4jStore{driver: driver, owner: true, opts: opts, log: log}, nil
}

// Session returns a second store sharing this store's driver, for use by
// another ingest worker. Merges are serialized per store but parallel
// across stores; the server's own locking handles serializability.
func (s *Neo4jStore) Session() Store {
	return &Neo4jStore{driver: s.driver, opts: s.opts, log: s.log}
}

// Close flushes pending writes and, for the store that opened the driver,
// closes it.
func (s *Neo4jStore) Close() error {
	ctx := context.Background()
	err := s.Flush(ctx)
	if s.owner {
		if cerr := s.driver.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// ---------- Schema ----------

// InitSchema applies the uniqueness constraints and indexes. Safe to call
// on an already-initialized database.
func (s *Neo4jStore) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := s.runNow(ctx, stmt, nil); err != nil {
			return fmt.Errorf("neo4j: init schema: %w", err)
		}
	}
	return nil
}

// DropAll removes every node and relationship.
func (s *Neo4jStore) DropAll(ctx context.Context) error {
	if err := s.runNow(ctx, cypherDropAll, nil); err != nil {
		return fmt.Errorf("neo4j: drop: %w", err)
	}
	return nil
}

// ---------- Ingest ----------

func (s *Neo4jStore) IngestCrateVersion(ctx context.Context, cv CrateVersion) error {
	if err := s.enqueue(ctx, statement{cypherMergeVersion, versionParams(cv)}); err != nil {
		return err
	}
	for _, dep := range cv.Deps {
		if err := s.enqueue(ctx, statement{cypherMergeDependsOn, dependsOnParams(cv, dep)}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Neo4jStore) IngestInvokes(ctx context.Context, crate crates.Crate, invokes []Invoke) error {
	for _, inv := range invokes {
		if err := s.enqueue(ctx, statement{cypherMergeInvoke, invokeParams(crate.Name, crate.Version, inv)}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Neo4jStore) SetLatest(ctx context.Context, name, version string) error {
	return s.enqueue(ctx, statement{cypherSetLatest, map[string]any{
		"name":    name,
		"version": version,
	}})
}

func (s *Neo4jStore) SetUnsafeCounts(ctx context.Context, crate crates.Crate, blocks, fns int) error {
	return s.enqueue(ctx, statement{cypherSetUnsafe, map[string]any{
		"name":    crate.Name,
		"version": crate.Version,
		"blocks":  int64(blocks),
		"fns":     int64(fns),
	}})
}

// enqueue buffers one statement, flushing when the batch is full.
func (s *Neo4jStore) enqueue(ctx context.Context, stmt statement) error {
	s.mu.Lock()
	s.pending = append(s.pending, stmt)
	full := len(s.pending) >= s.opts.BatchSize
	s.mu.Unlock()
	if full {
		return s.Flush(ctx)
	}
	return nil
}

// Flush commits everything pending in one explicit transaction, retrying
// transient failures with exponential backoff.
func (s *Neo4jStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	err := withRetry(ctx, s.opts.Attempts, s.opts.BaseDelay, s.log, func() error {
		return s.commitBatch(ctx, batch)
	})
	if err != nil {
		return fmt.Errorf("neo4j: batch of %d: %w", len(batch), err)
	}
	return nil
}

func (s *Neo4jStore) commitBatch(ctx context.Context, batch []statement) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.opts.Database})
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range batch {
		res, err := tx.Run(ctx, stmt.cypher, stmt.params)
		if err != nil {
			return classify(err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return classify(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// classify marks client errors (constraint violations included) permanent;
// everything else, timeouts and dropped connections above all, stays
// retryable.
func classify(err error) error {
	var neoErr *db.Neo4jError
	if errors.As(err, &neoErr) && strings.HasPrefix(neoErr.Code, "Neo.ClientError") {
		return Permanent(err)
	}
	return err
}

// ---------- Stats ----------

func (s *Neo4jStore) Stats(ctx context.Context) (*Stats, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}

	stats := &Stats{}
	counts := []struct {
		cypher string
		dst    *int64
	}{
		{`MATCH (c:Crate) RETURN count(c)`, &stats.Crates},
		{`MATCH (v:Version) RETURN count(v)`, &stats.Versions},
		{`MATCH ()-[r:VERSION_OF]->() RETURN count(r)`, &stats.VersionOf},
		{`MATCH ()-[r:DEPENDS_ON]->() RETURN count(r)`, &stats.DependsOn},
		{`MATCH ()-[r:INVOKES]->() RETURN count(r)`, &stats.Invokes},
	}
	for _, c := range counts {
		n, err := s.count(ctx, c.cypher)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}
	return stats, nil
}

func (s *Neo4jStore) count(ctx context.Context, cypher string) (int64, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.opts.Database})
	defer session.Close(ctx)

	res, err := session.Run(ctx, cypher, nil)
	if err != nil {
		return 0, fmt.Errorf("neo4j: count: %w", err)
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return 0, fmt.Errorf("neo4j: count: %w", err)
	}
	n, ok := rec.Values[0].(int64)
	if !ok {
		return 0, fmt.Errorf("neo4j: count: unexpected value %T", rec.Values[0])
	}
	return n, nil
}

// runNow executes one statement outside the batch buffer.
func (s *Neo4jStore) runNow(ctx context.Context, cypher string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.opts.Database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}
