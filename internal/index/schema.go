package index

// currentSchemaVersion is stored in SQLite's user_version pragma. Bump it
// whenever the schema below changes; Open runs a fresh CREATE when the
// stored version does not match (there is no migration path yet; the
// cache does not version-control the cached files, and the index schema
// itself is likewise not migrated across versions).
const currentSchemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cache (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT NOT NULL UNIQUE,
	origin_uri  TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	data        TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL,
	accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_accessed_at ON cache(accessed_at);
CREATE INDEX IF NOT EXISTS idx_cache_origin_uri ON cache(origin_uri);

CREATE TABLE IF NOT EXISTS project (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	uri         TEXT NOT NULL UNIQUE,
	assets      TEXT NOT NULL DEFAULT '[]',
	reader_key  TEXT NOT NULL DEFAULT 'default',
	traceback   TEXT,
	created_at  INTEGER NOT NULL
);
`
