// Package project implements the project registry: notebooks scheduled for
// execution, together with the assets they need copied alongside them, and
// which ones are outdated relative to the cache.
package project

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/notecache/notecache/internal/cache"
	"github.com/notecache/notecache/internal/index"
	"github.com/notecache/notecache/internal/notebook"
	"github.com/notecache/notecache/internal/reader"
)

// Record mirrors index.ProjectRecord on the project package's public surface.
type Record struct {
	ID        int64
	URI       string
	Assets    []string
	ReaderKey string
	Traceback *string
	CreatedAt time.Time
}

// Registry is the project registry, composing the index, the cache engine
// and the reader plug-in registry.
type Registry struct {
	idx     *index.Index
	engine  *cache.Engine
	readers *reader.Registry
}

// Open wires a Registry over already-open dependencies.
func Open(idx *index.Index, engine *cache.Engine, readers *reader.Registry) *Registry {
	return &Registry{idx: idx, engine: engine, readers: readers}
}

// Add validates that every asset path lies under uri or its parent
// directory, then inserts (or, on duplicate uri, returns the existing
// record unmodified).
func (r *Registry) Add(ctx context.Context, uri string, assets []string, readerKey string) (Record, error) {
	for _, a := range assets {
		if err := validateAssetPath(uri, a); err != nil {
			return Record{}, err
		}
	}

	if readerKey == "" {
		readerKey = reader.DefaultKey
	}

	rec, err := r.idx.CreateProjectRecord(ctx, index.ProjectRecord{
		URI:       uri,
		Assets:    assets,
		ReaderKey: readerKey,
	}, true)
	if err != nil {
		return Record{}, fmt.Errorf("project: add: %w", err)
	}

	return toRecord(rec), nil
}

// Remove deletes the project entry identified by idOrURI, which may be
// either a record's numeric id or its notebook uri.
func (r *Registry) Remove(ctx context.Context, idOrURI string) error {
	if id, ok := parseRecordID(idOrURI); ok {
		if err := r.idx.RemoveProjectRecordByID(ctx, id); err != nil {
			return fmt.Errorf("project: remove: %w", err)
		}

		return nil
	}

	if err := r.idx.RemoveProjectRecord(ctx, idOrURI); err != nil {
		return fmt.Errorf("project: remove: %w", err)
	}

	return nil
}

// Get returns the project entry identified by idOrURI, which may be either
// a record's numeric id or its notebook uri.
func (r *Registry) Get(ctx context.Context, idOrURI string) (Record, error) {
	if id, ok := parseRecordID(idOrURI); ok {
		rec, err := r.idx.LookupProjectByID(ctx, id)
		if err != nil {
			return Record{}, fmt.Errorf("project: get: %w", err)
		}

		return toRecord(rec), nil
	}

	rec, err := r.idx.LookupProjectByURI(ctx, idOrURI)
	if err != nil {
		return Record{}, fmt.Errorf("project: get: %w", err)
	}

	return toRecord(rec), nil
}

// parseRecordID reports whether s looks like a record id rather than a
// uri. Notebook uris are filesystem paths and never parse as a bare
// integer, so a successful parse unambiguously selects the id form.
func parseRecordID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}

// List returns every registered project record.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	recs, err := r.idx.ListProjectRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("project: list: %w", err)
	}

	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = toRecord(rec)
	}

	return out, nil
}

// NotebookOf resolves the reader plug-in from the record's reader_key and
// invokes it on the uri.
func (r *Registry) NotebookOf(ctx context.Context, rec Record) (*notebook.Doc, error) {
	doc, err := r.readers.Read(ctx, rec.ReaderKey, rec.URI)
	if err != nil {
		return nil, fmt.Errorf("project: notebook of %s: %w", rec.URI, err)
	}

	return doc, nil
}

// CachedMatchOf loads the notebook, fingerprints it, and looks it up in
// the cache; returns (zero, false) if no entry matches.
func (r *Registry) CachedMatchOf(ctx context.Context, rec Record) (cache.Record, bool, error) {
	doc, err := r.NotebookOf(ctx, rec)
	if err != nil {
		return cache.Record{}, false, err
	}

	match, err := r.engine.Match(ctx, doc)
	if errors.Is(err, cache.ErrNotFound) {
		return cache.Record{}, false, nil
	}

	if err != nil {
		return cache.Record{}, false, fmt.Errorf("project: cached match of %s: %w", rec.URI, err)
	}

	return match, true, nil
}

// Unexecuted returns every record whose CachedMatchOf is absent.
func (r *Registry) Unexecuted(ctx context.Context) ([]Record, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []Record

	for _, rec := range all {
		_, found, err := r.CachedMatchOf(ctx, rec)
		if err != nil {
			return nil, err
		}

		if !found {
			out = append(out, rec)
		}
	}

	return out, nil
}

// SetTraceback records the last execution failure for uri.
func (r *Registry) SetTraceback(ctx context.Context, uri string, traceback *string) error {
	return r.idx.SetTraceback(ctx, uri, traceback)
}

// ClearTracebacks clears every recorded traceback. The execution pipeline
// does not call it; it clears only the selected records' tracebacks via
// SetTraceback.
func (r *Registry) ClearTracebacks(ctx context.Context) error {
	return r.idx.ClearTracebacks(ctx)
}

func toRecord(r index.ProjectRecord) Record {
	return Record{
		ID:        r.ID,
		URI:       r.URI,
		Assets:    r.Assets,
		ReaderKey: r.ReaderKey,
		Traceback: r.Traceback,
		CreatedAt: r.CreatedAt,
	}
}

// validateAssetPath requires asset to equal uri or lie under uri's parent
// directory.
func validateAssetPath(uri, asset string) error {
	parent := filepath.Dir(uri)

	rel, err := filepath.Rel(parent, asset)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidAsset, asset, err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(asset) {
		return fmt.Errorf("%w: %q does not lie under %q", ErrInvalidAsset, asset, parent)
	}

	return nil
}
