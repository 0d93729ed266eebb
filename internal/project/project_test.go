package project_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/notecache/notecache/internal/blobstore"
	"github.com/notecache/notecache/internal/cache"
	"github.com/notecache/notecache/internal/fingerprint"
	"github.com/notecache/notecache/internal/index"
	"github.com/notecache/notecache/internal/notebook"
	"github.com/notecache/notecache/internal/project"
	"github.com/notecache/notecache/internal/reader"
)

func newRegistry(t *testing.T) (*project.Registry, *cache.Engine, string) {
	t.Helper()

	dir := t.TempDir()

	idx, err := index.Open(t.Context(), filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}

	t.Cleanup(func() { _ = idx.Close() })

	blobs := blobstore.Open(dir)

	engine, err := cache.Open(t.Context(), idx, blobs, fingerprint.DefaultOptions())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}

	readers := reader.NewRegistry()

	return project.Open(idx, engine, readers), engine, dir
}

func writeNotebookFile(t *testing.T, path, source string) {
	t.Helper()

	one := 1
	doc := &notebook.Doc{
		FormatMajor: 4,
		FormatMinor: 5,
		Cells: []notebook.Cell{
			{Kind: notebook.KindCode, Source: source, ExecutionCount: &one},
		},
	}

	b, err := notebook.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	err = os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	err = os.WriteFile(path, b, 0o600)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestAdd_DuplicateURI_ReturnsExisting(t *testing.T) {
	t.Parallel()

	reg, _, dir := newRegistry(t)

	uri := filepath.Join(dir, "nb.ipynb")

	first, err := reg.Add(t.Context(), uri, nil, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	second, err := reg.Add(t.Context(), uri, nil, "")
	if err != nil {
		t.Fatalf("add again: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected same record, got %d and %d", first.ID, second.ID)
	}
}

func TestAdd_RejectsAssetOutsideParentDir(t *testing.T) {
	t.Parallel()

	reg, _, dir := newRegistry(t)

	uri := filepath.Join(dir, "project", "nb.ipynb")

	_, err := reg.Add(t.Context(), uri, []string{filepath.Join(dir, "outside.txt")}, "")
	if !errors.Is(err, project.ErrInvalidAsset) {
		t.Fatalf("err = %v, want ErrInvalidAsset", err)
	}
}

func TestAdd_AcceptsAssetUnderParentDir(t *testing.T) {
	t.Parallel()

	reg, _, dir := newRegistry(t)

	uri := filepath.Join(dir, "nb.ipynb")
	asset := filepath.Join(dir, "data", "input.csv")

	_, err := reg.Add(t.Context(), uri, []string{asset}, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
}

func TestUnexecuted_ListsEntriesWithoutCacheMatch(t *testing.T) {
	t.Parallel()

	reg, engine, dir := newRegistry(t)

	notCached := filepath.Join(dir, "not_cached.ipynb")
	writeNotebookFile(t, notCached, "a=1")

	cached := filepath.Join(dir, "cached.ipynb")
	writeNotebookFile(t, cached, "b=2")

	_, err := reg.Add(t.Context(), notCached, nil, "")
	if err != nil {
		t.Fatalf("add not_cached: %v", err)
	}

	cachedRec, err := reg.Add(t.Context(), cached, nil, "")
	if err != nil {
		t.Fatalf("add cached: %v", err)
	}

	doc, err := reg.NotebookOf(t.Context(), cachedRec)
	if err != nil {
		t.Fatalf("notebook of: %v", err)
	}

	_, err = engine.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: cached}, cache.DefaultCacheOptions())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	outdated, err := reg.Unexecuted(t.Context())
	if err != nil {
		t.Fatalf("unexecuted: %v", err)
	}

	if len(outdated) != 1 || outdated[0].URI != notCached {
		t.Fatalf("unexecuted = %+v, want only %s", outdated, notCached)
	}
}

func TestSetTraceback_And_ClearTracebacks(t *testing.T) {
	t.Parallel()

	reg, _, dir := newRegistry(t)

	uri := filepath.Join(dir, "nb.ipynb")

	_, err := reg.Add(t.Context(), uri, nil, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	tb := "boom"

	err = reg.SetTraceback(t.Context(), uri, &tb)
	if err != nil {
		t.Fatalf("set traceback: %v", err)
	}

	rec, err := reg.Get(t.Context(), uri)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if rec.Traceback == nil || *rec.Traceback != tb {
		t.Fatalf("traceback = %v, want %q", rec.Traceback, tb)
	}

	err = reg.ClearTracebacks(t.Context())
	if err != nil {
		t.Fatalf("clear: %v", err)
	}

	rec, err = reg.Get(t.Context(), uri)
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}

	if rec.Traceback != nil {
		t.Fatal("traceback not cleared")
	}
}
