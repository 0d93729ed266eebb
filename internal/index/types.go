// Package index implements the relational index: the single small SQL
// store binding fingerprints, origin URIs, project
// entries and timestamps. It is backed by a single-file SQLite database
// (modernc.org/sqlite, pure Go, no cgo).
package index

import (
	"encoding/json"
	"time"
)

// CacheRecord is one row of the `cache` table.
type CacheRecord struct {
	ID          int64
	Fingerprint string
	OriginURI   string
	Description string
	Data        map[string]json.RawMessage
	CreatedAt   time.Time
	AccessedAt  time.Time
}

// ProjectRecord is one row of the `project` table.
type ProjectRecord struct {
	ID        int64
	URI       string
	Assets    []string
	ReaderKey string
	Traceback *string
	CreatedAt time.Time
}

// SettingCacheLimit is the only required settings key: the maximum number
// of cache records retained before eviction.
const SettingCacheLimit = "cache_limit"

// DefaultCacheLimit is used when the settings table has no cache_limit row.
const DefaultCacheLimit = 1000
