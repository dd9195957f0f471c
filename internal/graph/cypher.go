package graph

// Cypher shared by the Neo4j and Kuzu backends. Everything is a MERGE:
// ingest must be re-entrant, so CREATE never appears here.

// schemaStatements are applied by Neo4jStore.InitSchema. Order matters:
// constraints before indexes.
var schemaStatements = []string{
	`CREATE CONSTRAINT crate_name IF NOT EXISTS
	 FOR (c:Crate) REQUIRE c.name IS UNIQUE`,
	`CREATE CONSTRAINT version_key IF NOT EXISTS
	 FOR (v:Version) REQUIRE (v.name, v.version) IS NODE KEY`,
	`CREATE INDEX invokes_caller_callee IF NOT EXISTS
	 FOR ()-[r:INVOKES]-() ON (r.caller, r.callee)`,
	`CREATE INDEX version_latest IF NOT EXISTS
	 FOR (v:Version) ON (v.latest)`,
}

const cypherDropAll = `MATCH (n) DETACH DELETE n`

const cypherMergeVersion = `MERGE (c:Crate {name: $name})
MERGE (v:Version {name: $name, version: $version})
SET v.major = $major, v.minor = $minor, v.patch = $patch,
    v.pre = $pre, v.build = $build
MERGE (v)-[:VERSION_OF]->(c)`

// DEPENDS_ON targets the required crate, not a version: the requirement is
// a predicate string, resolved (if ever) by consumers.
const cypherMergeDependsOn = `MATCH (v:Version {name: $name, version: $version})
MERGE (d:Crate {name: $depend})
MERGE (v)-[r:DEPENDS_ON {requirement: $req, kind: $kind, optional: $optional}]->(d)
SET r.features = $features`

// The callee crate is merged here because it may never have been listed in
// the index; the anchor Version is matched, never created, so invocation
// edges only ever hang off analyzed versions.
const cypherMergeInvoke = `MATCH (v:Version {name: $name, version: $version})
MERGE (c:Crate {name: $calleeCrate})
MERGE (v)-[r:INVOKES {caller: $caller, callee: $callee}]->(c)`

const cypherSetLatest = `MATCH (c:Crate {name: $name})<-[:VERSION_OF]-(v:Version)
SET v.latest = (v.version = $version)`

const cypherSetUnsafe = `MATCH (v:Version {name: $name, version: $version})
SET v.unsafe_blocks = $blocks, v.unsafe_fns = $fns`

// versionParams builds the parameter map for cypherMergeVersion.
func versionParams(cv CrateVersion) map[string]any {
	return map[string]any{
		"name":    cv.Name,
		"version": cv.Version,
		"major":   int64(cv.Semver.Major),
		"minor":   int64(cv.Semver.Minor),
		"patch":   int64(cv.Semver.Patch),
		"pre":     cv.Semver.Pre,
		"build":   cv.Semver.Build,
	}
}

// dependsOnParams builds the parameter map for cypherMergeDependsOn.
func dependsOnParams(cv CrateVersion, dep Dep) map[string]any {
	features := dep.Features
	if features == nil {
		features = []string{}
	}
	return map[string]any{
		"name":     cv.Name,
		"version":  cv.Version,
		"depend":   dep.Name,
		"req":      dep.Req,
		"kind":     dep.Kind,
		"optional": dep.Optional,
		"features": features,
	}
}

// invokeParams builds the parameter map for cypherMergeInvoke.
func invokeParams(name, version string, inv Invoke) map[string]any {
	return map[string]any{
		"name":        name,
		"version":     version,
		"caller":      inv.Caller,
		"callee":      inv.Callee,
		"calleeCrate": inv.CalleeCrate,
	}
}
