// Package cache implements the cache engine: the component that composes
// the fingerprinter, relational index and blob store into insert,
// retrieve, match, remove, evict, diff and merge operations.
package cache

import (
	"encoding/json"
	"io"
	"time"

	"github.com/notecache/notecache/internal/notebook"
)

// Bundle is the input to Cache: a notebook plus its origin and any
// artifacts produced alongside it.
type Bundle struct {
	Notebook    *notebook.Doc
	OriginURI   string
	Description string
	Artifacts   []ArtifactInput
	Data        map[string]json.RawMessage
}

// ArtifactInput pairs an artifact's store-relative path with its bytes.
type ArtifactInput struct {
	RelPath string
	Content io.Reader
}

// Record mirrors index.CacheRecord but belongs to the cache package's
// public surface so callers don't need to import internal/index directly.
type Record struct {
	ID          int64
	Fingerprint string
	OriginURI   string
	Description string
	Data        map[string]json.RawMessage
	CreatedAt   time.Time
	AccessedAt  time.Time
}

// RetrievedBundle is what Get returns: the stored notebook plus its record.
type RetrievedBundle struct {
	Record   Record
	Notebook *notebook.Doc
}

// CacheOptions configures Cache.
type CacheOptions struct {
	CheckValidity bool
	Overwrite     bool
	Description   string
}

// DefaultCacheOptions returns the default options: check_validity=true,
// overwrite=false, description="".
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{CheckValidity: true}
}

// Stats is the result of the read-only stats operation.
type Stats struct {
	RecordCount int
	CacheLimit  int
	ApproxBytes int64
}
