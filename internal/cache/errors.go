package cache

import "errors"

// Sentinel errors for the cache engine.
var (
	ErrInvalidNotebook = errors.New("cache: invalid notebook")
	ErrAlreadyCached   = errors.New("cache: already cached")
	ErrNotFound        = errors.New("cache: not found")
	ErrStorageCorrupt  = errors.New("cache: storage corrupt")

	// ErrIncompatibleCacheVersion is returned by Open when the cache
	// directory's version.txt does not match CacheFormatVersion and no
	// migration is registered.
	ErrIncompatibleCacheVersion = errors.New("cache: incompatible cache version")
)

// CacheFormatVersion identifies the on-disk layout written by this version
// of notecache (cache root layout, blob tree shape, index schema). Bump it
// whenever any of those change in a way old cache directories can't read.
const CacheFormatVersion = "notecache-v1"
