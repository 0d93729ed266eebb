package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/notecache/notecache/internal/blobstore"
	"github.com/notecache/notecache/internal/fingerprint"
	"github.com/notecache/notecache/internal/index"
	"github.com/notecache/notecache/internal/notebook"
	"github.com/notecache/notecache/internal/obs"
)

// fingerprintCacheSize bounds the in-memory fingerprint->id lookup cache
// fronting the index: large enough to keep a typical notebook-heavy
// build's working set of repeated match() calls off SQLite without
// growing unbounded.
const fingerprintCacheSize = 4096

// Engine is the cache engine. It owns a single-writer discipline over the
// index and blob store with an in-process sync.RWMutex: the index and
// blob store each accept one writer at a time, and while SQLite's own
// writer connection already serializes at the process level, the mutex
// additionally serializes the two-step index+blob sequence so it is never
// interleaved.
//
// fpCache caches fingerprint->record-id only; it is never the source of
// truth for eviction order, which stays computed from accessed_at in
// SQLite (golang-lru's own eviction is capacity-based and would violate
// the recency tie-break rule if used for anything beyond this
// existence/id shortcut).
type Engine struct {
	idx   *index.Index
	blobs *blobstore.Store
	opts  fingerprint.Options

	mu      sync.RWMutex
	fpCache *lru.Cache[string, int64]
}

// Open wires an Engine over an already-open index and blob store. It
// enforces the version.txt migration guard: a fresh cache root adopts
// CacheFormatVersion, an existing one that disagrees fails closed with
// ErrIncompatibleCacheVersion rather than silently reading or writing an
// incompatible layout. It then runs the startup corruption sweep once; a
// sweep failure is logged but does not fail Open, since a corrupt sweep
// should not block a cache a caller may still be able to use.
func Open(ctx context.Context, idx *index.Index, blobs *blobstore.Store, opts fingerprint.Options) (*Engine, error) {
	if err := blobs.CheckVersion(CacheFormatVersion); err != nil {
		if errors.Is(err, blobstore.ErrVersionMismatch) {
			return nil, fmt.Errorf("%w: %s", ErrIncompatibleCacheVersion, err)
		}

		return nil, fmt.Errorf("cache: check version: %w", err)
	}

	fpCache, err := lru.New[string, int64](fingerprintCacheSize)
	if err != nil {
		panic("cache: invalid fingerprint cache size")
	}

	e := &Engine{idx: idx, blobs: blobs, opts: opts, fpCache: fpCache}

	if err := e.SweepOrphans(ctx); err != nil {
		obs.Log().Warn().Err(err).Msg("startup corruption sweep failed")
	}

	return e, nil
}

// Cache inserts bundle into the cache, keyed by its notebook's fingerprint.
func (e *Engine) Cache(ctx context.Context, bundle Bundle, opts CacheOptions) (Record, error) {
	if opts.CheckValidity {
		if err := validateExecutionOrder(bundle.Notebook); err != nil {
			return Record{}, err
		}
	}

	result, err := fingerprint.Fingerprint(bundle.Notebook, e.opts)
	if err != nil {
		return Record{}, fmt.Errorf("cache: fingerprint: %w", err)
	}

	prepared, err := fingerprint.PrepareForStorage(bundle.Notebook)
	if err != nil {
		return Record{}, fmt.Errorf("cache: prepare for storage: %w", err)
	}

	storedBytes, err := notebook.Marshal(prepared)
	if err != nil {
		return Record{}, fmt.Errorf("cache: marshal notebook: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, lookupErr := e.idx.LookupCacheByFingerprint(ctx, result.Digest)

	switch {
	case lookupErr == nil && !opts.Overwrite:
		return Record{}, fmt.Errorf("%w: fingerprint %s", ErrAlreadyCached, result.Digest)
	case lookupErr == nil && opts.Overwrite:
		if err := e.removeLocked(ctx, result.Digest); err != nil {
			return Record{}, err
		}
	case errors.Is(lookupErr, index.ErrNotFound):
		// fresh fingerprint, nothing to clean up
	case lookupErr != nil:
		return Record{}, fmt.Errorf("cache: lookup fingerprint: %w", lookupErr)
	}

	description := bundle.Description
	if description == "" {
		description = describeFromOriginURI(bundle.OriginURI)
	}

	rec, err := e.idx.CreateCacheRecord(ctx, index.CacheRecord{
		Fingerprint: result.Digest,
		OriginURI:   bundle.OriginURI,
		Description: description,
		Data:        bundle.Data,
	})
	if err != nil {
		return Record{}, fmt.Errorf("cache: create record: %w", err)
	}

	err = e.blobs.WriteNotebook(ctx, result.Digest, storedBytes)
	if err != nil {
		_, _ = e.idx.RemoveCacheRecords(ctx, []string{result.Digest})

		return Record{}, fmt.Errorf("cache: write notebook blob: %w", err)
	}

	e.fpCache.Add(result.Digest, rec.ID)

	if len(bundle.Artifacts) > 0 {
		artifacts := make([]blobstore.Artifact, len(bundle.Artifacts))
		for i, a := range bundle.Artifacts {
			artifacts[i] = blobstore.Artifact{RelPath: a.RelPath, Content: a.Content}
		}

		err = e.blobs.WriteArtifacts(ctx, result.Digest, artifacts)
		if err != nil {
			_, _ = e.idx.RemoveCacheRecords(ctx, []string{result.Digest})
			_ = e.blobs.RemoveTree(result.Digest)
			e.fpCache.Remove(result.Digest)

			return Record{}, fmt.Errorf("cache: write artifacts: %w", err)
		}
	}

	err = e.evictLocked(ctx)
	if err != nil {
		obs.Log().Warn().Err(err).Msg("eviction failed after cache insert")
	}

	return toRecord(rec), nil
}

// Match returns the cache record whose fingerprint matches doc's current
// state, or ErrNotFound.
func (e *Engine) Match(ctx context.Context, doc *notebook.Doc) (Record, error) {
	result, err := fingerprint.Fingerprint(doc, e.opts)
	if err != nil {
		return Record{}, fmt.Errorf("cache: fingerprint: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var rec index.CacheRecord

	if id, hit := e.fpCache.Get(result.Digest); hit {
		cached, lookupErr := e.idx.LookupCacheByID(ctx, id)
		if lookupErr != nil && !errors.Is(lookupErr, index.ErrNotFound) {
			return Record{}, fmt.Errorf("cache: lookup by id: %w", lookupErr)
		}

		if lookupErr == nil {
			rec = cached
		}
	}

	if rec.ID == 0 {
		found, err := e.idx.LookupCacheByFingerprint(ctx, result.Digest)
		if errors.Is(err, index.ErrNotFound) {
			return Record{}, fmt.Errorf("%w: fingerprint %s", ErrNotFound, result.Digest)
		}

		if err != nil {
			return Record{}, fmt.Errorf("cache: lookup fingerprint: %w", err)
		}

		rec = found
		e.fpCache.Add(result.Digest, rec.ID)
	}

	err = e.idx.Touch(ctx, rec.Fingerprint)
	if err != nil {
		return Record{}, fmt.Errorf("cache: touch: %w", err)
	}

	refreshed, err := e.idx.LookupCacheByID(ctx, rec.ID)
	if err != nil {
		return Record{}, fmt.Errorf("cache: reload after touch: %w", err)
	}

	return toRecord(refreshed), nil
}

// GetRecord returns the record with id.
func (e *Engine) GetRecord(ctx context.Context, id int64) (Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.getRecordLocked(ctx, id)
}

// getRecordLocked requires the caller to already hold e.mu in either mode.
func (e *Engine) getRecordLocked(ctx context.Context, id int64) (Record, error) {
	rec, err := e.idx.LookupCacheByID(ctx, id)
	if errors.Is(err, index.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	if err != nil {
		return Record{}, fmt.Errorf("cache: lookup by id: %w", err)
	}

	return toRecord(rec), nil
}

// Get returns the stored notebook plus record for id, and refreshes the
// record's accessed_at.
func (e *Engine) Get(ctx context.Context, id int64) (RetrievedBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	found, err := e.idx.LookupCacheByID(ctx, id)
	if errors.Is(err, index.ErrNotFound) {
		return RetrievedBundle{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	if err != nil {
		return RetrievedBundle{}, fmt.Errorf("cache: lookup by id: %w", err)
	}

	data, err := e.blobs.ReadNotebook(ctx, found.Fingerprint)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return RetrievedBundle{}, fmt.Errorf("%w: fingerprint %s", ErrStorageCorrupt, found.Fingerprint)
	}

	if err != nil {
		return RetrievedBundle{}, fmt.Errorf("cache: read blob: %w", err)
	}

	doc, err := notebook.Unmarshal(data)
	if err != nil {
		return RetrievedBundle{}, fmt.Errorf("cache: unmarshal blob: %w", err)
	}

	err = e.idx.Touch(ctx, found.Fingerprint)
	if err != nil {
		return RetrievedBundle{}, fmt.Errorf("cache: touch: %w", err)
	}

	return RetrievedBundle{Record: toRecord(found), Notebook: doc}, nil
}

// ListRecords returns every cache record.
func (e *Engine) ListRecords(ctx context.Context) ([]Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	records, err := e.idx.ListCacheRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache: list records: %w", err)
	}

	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = toRecord(r)
	}

	return out, nil
}

// Remove deletes the cache record and blob tree for id.
func (e *Engine) Remove(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.getRecordLocked(ctx, id)
	if err != nil {
		return err
	}

	return e.removeLocked(ctx, rec.Fingerprint)
}

func (e *Engine) removeLocked(ctx context.Context, fingerprintDigest string) error {
	_, err := e.idx.RemoveCacheRecords(ctx, []string{fingerprintDigest})
	if err != nil {
		return fmt.Errorf("cache: remove record: %w", err)
	}

	err = e.blobs.RemoveTree(fingerprintDigest)
	if err != nil {
		return fmt.Errorf("cache: remove blob tree: %w", err)
	}

	e.fpCache.Remove(fingerprintDigest)

	return nil
}

// Clear removes every cache record and blob.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, err := e.idx.ListCacheRecords(ctx)
	if err != nil {
		return fmt.Errorf("cache: list records for clear: %w", err)
	}

	fingerprints := make([]string, len(records))
	for i, r := range records {
		fingerprints[i] = r.Fingerprint
	}

	_, err = e.idx.RemoveCacheRecords(ctx, fingerprints)
	if err != nil {
		return fmt.Errorf("cache: clear records: %w", err)
	}

	e.fpCache.Purge()

	return e.blobs.ClearAll()
}

// Stats implements the supplemented Stats(ctx) read-only operation.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	count, err := e.idx.CountCacheRecords(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("cache: count records: %w", err)
	}

	limit, err := e.idx.CacheLimit(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("cache: cache limit: %w", err)
	}

	approxBytes, err := e.blobs.Size()
	if err != nil {
		return Stats{}, fmt.Errorf("cache: blob store size: %w", err)
	}

	return Stats{RecordCount: count, CacheLimit: limit, ApproxBytes: approxBytes}, nil
}

// SweepOrphans implements the startup corruption sweep: index rows with a
// missing blob tree are deleted; blob trees with no matching index row
// are deleted.
func (e *Engine) SweepOrphans(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, err := e.idx.ListCacheRecords(ctx)
	if err != nil {
		return fmt.Errorf("cache: list records for sweep: %w", err)
	}

	known := make(map[string]bool, len(records))

	var orphanRows []string

	for _, r := range records {
		known[r.Fingerprint] = true

		if !e.blobs.HasBlob(r.Fingerprint) {
			orphanRows = append(orphanRows, r.Fingerprint)
		}
	}

	if len(orphanRows) > 0 {
		_, err = e.idx.RemoveCacheRecords(ctx, orphanRows)
		if err != nil {
			return fmt.Errorf("cache: remove orphan rows: %w", err)
		}

		for _, fp := range orphanRows {
			e.fpCache.Remove(fp)
		}

		obs.Log().Warn().Strs("fingerprints", orphanRows).Msg("removed index rows with missing blob tree")
	}

	orphanBlobs, err := e.blobs.ListFingerprints()
	if err != nil {
		return fmt.Errorf("cache: list blob fingerprints: %w", err)
	}

	for _, fp := range orphanBlobs {
		if !known[fp] {
			if removeErr := e.blobs.RemoveTree(fp); removeErr != nil {
				return fmt.Errorf("cache: remove orphan blob %s: %w", fp, removeErr)
			}

			obs.Log().Warn().Str("fingerprint", fp).Msg("removed blob tree with no matching index row")
		}
	}

	return nil
}

func (e *Engine) evictLocked(ctx context.Context) error {
	limit, err := e.idx.CacheLimit(ctx)
	if err != nil {
		return fmt.Errorf("cache: read cache limit: %w", err)
	}

	count, err := e.idx.CountCacheRecords(ctx)
	if err != nil {
		return fmt.Errorf("cache: count records: %w", err)
	}

	if count <= limit {
		return nil
	}

	excess := count - limit

	victims, err := e.idx.OldestCacheRecords(ctx, excess)
	if err != nil {
		return fmt.Errorf("cache: oldest records: %w", err)
	}

	for _, v := range victims {
		if err := e.removeLocked(ctx, v.Fingerprint); err != nil {
			return err
		}

		obs.Log().Debug().Str("fingerprint", v.Fingerprint).Msg("evicted cache record")
	}

	return nil
}

func toRecord(r index.CacheRecord) Record {
	return Record{
		ID:          r.ID,
		Fingerprint: r.Fingerprint,
		OriginURI:   r.OriginURI,
		Description: r.Description,
		Data:        r.Data,
		CreatedAt:   r.CreatedAt,
		AccessedAt:  r.AccessedAt,
	}
}

func describeFromOriginURI(uri string) string {
	if uri == "" {
		return ""
	}

	return filepath.Base(uri)
}

// validateExecutionOrder checks that code cells' execution_count values
// form the sequence 1, 2, 3, ... in document order, skipping prose cells.
// The reported cell index counts over the whole cell list, matching the
// original jupyter_cache's enumerate(nb_bundle.nb.cells).
func validateExecutionOrder(doc *notebook.Doc) error {
	expected := 1

	for i, cell := range doc.Cells {
		if cell.Kind != notebook.KindCode {
			continue
		}

		if cell.ExecutionCount == nil || *cell.ExecutionCount != expected {
			return fmt.Errorf("%w: cell %d execution_count out of sequence", ErrInvalidNotebook, i)
		}

		expected++
	}

	return nil
}
