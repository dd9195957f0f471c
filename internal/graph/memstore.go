package graph

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/cratelab/painter/internal/crates"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store with Go maps, mirroring the MERGE semantics of
// the real backends closely enough to check idempotence and the graph
// invariants in tests. Thread-safe via sync.Mutex.
type MemStore struct {
	mu        sync.Mutex
	crateSet  map[string]bool
	versions  map[string]CrateVersion // key: name@version
	versionOf map[string]string       // version key -> crate name
	dependsOn map[string]bool         // (version key, crate, requirement, kind, optional)
	invokes   map[string]Invoke       // (version key, caller, callee, callee crate)
	latest    map[string]string       // crate name -> latest version
	unsafeCnt map[string][2]int       // version key -> (blocks, fns)
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	m := &MemStore{}
	m.reset()
	return m
}

func (m *MemStore) reset() {
	m.crateSet = make(map[string]bool)
	m.versions = make(map[string]CrateVersion)
	m.versionOf = make(map[string]string)
	m.dependsOn = make(map[string]bool)
	m.invokes = make(map[string]Invoke)
	m.latest = make(map[string]string)
	m.unsafeCnt = make(map[string][2]int)
}

func versionKey(name, version string) string {
	return name + "@" + version
}

func (m *MemStore) Close() error                       { return nil }
func (m *MemStore) Session() Store                     { return m }
func (m *MemStore) InitSchema(_ context.Context) error { return nil }
func (m *MemStore) Flush(_ context.Context) error      { return nil }

func (m *MemStore) DropAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

func (m *MemStore) IngestCrateVersion(_ context.Context, cv CrateVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.crateSet[cv.Name] = true
	key := versionKey(cv.Name, cv.Version)
	m.versions[key] = cv
	m.versionOf[key] = cv.Name

	for _, dep := range cv.Deps {
		m.crateSet[dep.Name] = true
		// Same identity as the backends' MERGE: features are not part of it.
		edge := strings.Join([]string{
			key, dep.Name, dep.Req, dep.Kind, strconv.FormatBool(dep.Optional),
		}, "\x00")
		m.dependsOn[edge] = true
	}
	return nil
}

func (m *MemStore) IngestInvokes(_ context.Context, crate crates.Crate, invokes []Invoke) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := versionKey(crate.Name, crate.Version)
	// MATCH semantics: an unknown version anchors nothing.
	if _, ok := m.versions[key]; !ok {
		return nil
	}
	for _, inv := range invokes {
		m.crateSet[inv.CalleeCrate] = true
		edge := strings.Join([]string{key, inv.CalleeCrate, inv.Caller, inv.Callee}, "\x00")
		m.invokes[edge] = inv
	}
	return nil
}

func (m *MemStore) SetLatest(_ context.Context, name, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[name] = version
	return nil
}

func (m *MemStore) SetUnsafeCounts(_ context.Context, crate crates.Crate, blocks, fns int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := versionKey(crate.Name, crate.Version)
	if _, ok := m.versions[key]; !ok {
		return nil
	}
	m.unsafeCnt[key] = [2]int{blocks, fns}
	return nil
}

func (m *MemStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &Stats{
		Crates:    int64(len(m.crateSet)),
		Versions:  int64(len(m.versions)),
		VersionOf: int64(len(m.versionOf)),
		DependsOn: int64(len(m.dependsOn)),
		Invokes:   int64(len(m.invokes)),
	}, nil
}

// ---------- Test inspection helpers ----------

// HasCrate reports whether a Crate node exists.
func (m *MemStore) HasCrate(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crateSet[name]
}

// CrateOfVersion returns the VERSION_OF target for a version, if any.
func (m *MemStore) CrateOfVersion(name, version string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	crate, ok := m.versionOf[versionKey(name, version)]
	return crate, ok
}

// InvokesFrom returns the INVOKES edges anchored at the given version.
func (m *MemStore) InvokesFrom(name, version string) []Invoke {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := versionKey(name, version) + "\x00"
	var out []Invoke
	for key, inv := range m.invokes {
		if strings.HasPrefix(key, prefix) {
			out = append(out, inv)
		}
	}
	return out
}

// LatestOf returns the version flagged latest for a crate.
func (m *MemStore) LatestOf(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.latest[name]
	return v, ok
}
