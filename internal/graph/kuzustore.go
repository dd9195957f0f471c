//go:build cgo

package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"

	"github.com/cratelab/painter/internal/crates"
)

// KuzuStore implements Store on an embedded KuzuDB database, for offline
// runs that do not have a Neo4j server at hand. It requires CGO because
// the go-kuzu driver wraps KuzuDB's C library.
//
// Kuzu needs a primary key per node table, so Version rows carry an id
// column "name@version" alongside the name and version properties.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
	// mu serializes statements: one embedded connection serves every
	// worker.
	mu sync.Mutex
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// OpenKuzu opens (or creates) a file-backed KuzuDB at dbPath.
func OpenKuzu(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(dbPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// OpenLocal opens the embedded backend. Kuzu statements commit as they
// run, so a single store serves every worker.
func OpenLocal(dbPath string) (Store, error) {
	return OpenKuzu(dbPath)
}

// Session returns the store itself: Kuzu writes are unbuffered.
func (s *KuzuStore) Session() Store { return s }

// Close releases the connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------- Schema ----------

// kuzuDDL defines the node and relationship tables. Node tables must
// precede relationship tables.
var kuzuDDL = []string{
	`CREATE NODE TABLE IF NOT EXISTS Crate(
		name STRING,
		PRIMARY KEY(name)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Version(
		id STRING,
		name STRING,
		version STRING,
		major INT64,
		minor INT64,
		patch INT64,
		pre STRING,
		build STRING,
		latest BOOLEAN,
		unsafe_blocks INT64,
		unsafe_fns INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS VERSION_OF(FROM Version TO Crate)`,
	`CREATE REL TABLE IF NOT EXISTS DEPENDS_ON(
		FROM Version TO Crate,
		requirement STRING,
		features STRING[],
		kind STRING,
		optional BOOLEAN
	)`,
	`CREATE REL TABLE IF NOT EXISTS INVOKES(
		FROM Version TO Crate,
		caller STRING,
		callee STRING
	)`,
}

func (s *KuzuStore) InitSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range kuzuDDL {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

func (s *KuzuStore) DropAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.conn.Query(cypherDropAll)
	if err != nil {
		return fmt.Errorf("kuzu: drop: %w", err)
	}
	res.Close()
	return nil
}

// ---------- Ingest ----------

func (s *KuzuStore) IngestCrateVersion(_ context.Context, cv CrateVersion) error {
	id := versionKey(cv.Name, cv.Version)
	if err := s.exec(
		`MERGE (c:Crate {name: $name})`,
		map[string]any{"name": cv.Name},
	); err != nil {
		return err
	}
	if err := s.exec(
		`MERGE (v:Version {id: $id})
		 SET v.name = $name, v.version = $version,
		     v.major = $major, v.minor = $minor, v.patch = $patch,
		     v.pre = $pre, v.build = $build`,
		map[string]any{
			"id":      id,
			"name":    cv.Name,
			"version": cv.Version,
			"major":   int64(cv.Semver.Major),
			"minor":   int64(cv.Semver.Minor),
			"patch":   int64(cv.Semver.Patch),
			"pre":     cv.Semver.Pre,
			"build":   cv.Semver.Build,
		},
	); err != nil {
		return err
	}
	if err := s.exec(
		`MATCH (v:Version {id: $id}), (c:Crate {name: $name})
		 MERGE (v)-[:VERSION_OF]->(c)`,
		map[string]any{"id": id, "name": cv.Name},
	); err != nil {
		return err
	}

	for _, dep := range cv.Deps {
		features := dep.Features
		if features == nil {
			features = []string{}
		}
		if err := s.exec(
			`MERGE (c:Crate {name: $depend})`,
			map[string]any{"depend": dep.Name},
		); err != nil {
			return err
		}
		if err := s.exec(
			`MATCH (v:Version {id: $id}), (d:Crate {name: $depend})
			 MERGE (v)-[r:DEPENDS_ON {requirement: $req, kind: $kind, optional: $optional}]->(d)
			 SET r.features = $features`,
			map[string]any{
				"id":       id,
				"depend":   dep.Name,
				"req":      dep.Req,
				"kind":     dep.Kind,
				"optional": dep.Optional,
				"features": features,
			},
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *KuzuStore) IngestInvokes(_ context.Context, crate crates.Crate, invokes []Invoke) error {
	id := versionKey(crate.Name, crate.Version)
	for _, inv := range invokes {
		if err := s.exec(
			`MERGE (c:Crate {name: $calleeCrate})`,
			map[string]any{"calleeCrate": inv.CalleeCrate},
		); err != nil {
			return err
		}
		if err := s.exec(
			`MATCH (v:Version {id: $id}), (c:Crate {name: $calleeCrate})
			 MERGE (v)-[r:INVOKES {caller: $caller, callee: $callee}]->(c)`,
			map[string]any{
				"id":          id,
				"calleeCrate": inv.CalleeCrate,
				"caller":      inv.Caller,
				"callee":      inv.Callee,
			},
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *KuzuStore) SetLatest(_ context.Context, name, version string) error {
	return s.exec(
		`MATCH (v:Version {name: $name})
		 SET v.latest = (v.version = $version)`,
		map[string]any{"name": name, "version": version},
	)
}

func (s *KuzuStore) SetUnsafeCounts(_ context.Context, crate crates.Crate, blocks, fns int) error {
	return s.exec(
		`MATCH (v:Version {id: $id})
		 SET v.unsafe_blocks = $blocks, v.unsafe_fns = $fns`,
		map[string]any{
			"id":     versionKey(crate.Name, crate.Version),
			"blocks": int64(blocks),
			"fns":    int64(fns),
		},
	)
}

// Flush is a no-op: Kuzu writes are committed per statement.
func (s *KuzuStore) Flush(_ context.Context) error { return nil }

// ---------- Stats ----------

func (s *KuzuStore) Stats(_ context.Context) (*Stats, error) {
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
		n, err := s.countQuery(c.cypher)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}
	return stats, nil
}

// ---------- Internal helpers ----------

// exec runs a parameterized statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

func (s *KuzuStore) countQuery(cypher string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.conn.Query(cypher)
	if err != nil {
		return 0, fmt.Errorf("kuzu: count: %w", err)
	}
	defer res.Close()

	if !res.HasNext() {
		return 0, nil
	}
	tuple, err := res.Next()
	if err != nil {
		return 0, fmt.Errorf("kuzu: count: %w", err)
	}
	vals, err := tuple.GetAsSlice()
	if err != nil {
		return 0, fmt.Errorf("kuzu: count: %w", err)
	}
	if len(vals) == 0 {
		return 0, nil
	}
	switch n := vals[0].(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("kuzu: count: unexpected value %T", vals[0])
	}
}
