package index

import "errors"

// Sentinel errors for the relational index.
var (
	// ErrNotFound is returned when a record or setting lookup finds nothing.
	ErrNotFound = errors.New("index: not found")

	// ErrDuplicateFingerprint is returned by CreateCacheRecord when a cache
	// record with the same fingerprint already exists.
	ErrDuplicateFingerprint = errors.New("index: duplicate fingerprint")

	// ErrDuplicateURI is returned by CreateProjectRecord when a project
	// record with the same uri already exists and the caller did not ask
	// for the existing record to be returned instead.
	ErrDuplicateURI = errors.New("index: duplicate project uri")
)
