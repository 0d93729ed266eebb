package cache_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/notecache/notecache/internal/blobstore"
	"github.com/notecache/notecache/internal/cache"
	"github.com/notecache/notecache/internal/fingerprint"
	"github.com/notecache/notecache/internal/index"
	"github.com/notecache/notecache/internal/notebook"
)

func newEngine(t *testing.T) *cache.Engine {
	t.Helper()

	root := t.TempDir()

	idx, err := index.Open(t.Context(), filepath.Join(root, "index.db"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}

	t.Cleanup(func() { _ = idx.Close() })

	blobs := blobstore.Open(root)

	eng, err := cache.Open(t.Context(), idx, blobs, fingerprint.DefaultOptions())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}

	return eng
}

func execDoc(source string, count int) *notebook.Doc {
	c := count

	return &notebook.Doc{
		FormatMajor: 4,
		FormatMinor: 5,
		Cells: []notebook.Cell{
			{Kind: notebook.KindCode, Source: source, ExecutionCount: &c},
		},
	}
}

func TestOpen_RejectsIncompatibleCacheVersion(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	blobs := blobstore.Open(root)

	if err := blobs.CheckVersion("some-older-format"); err != nil {
		t.Fatalf("seed version: %v", err)
	}

	idx, err := index.Open(t.Context(), filepath.Join(root, "index.db"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}

	t.Cleanup(func() { _ = idx.Close() })

	_, err = cache.Open(t.Context(), idx, blobs, fingerprint.DefaultOptions())
	if !errors.Is(err, cache.ErrIncompatibleCacheVersion) {
		t.Fatalf("err = %v, want ErrIncompatibleCacheVersion", err)
	}
}

func TestCache_InsertAndMatch(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)

	doc := execDoc("a=1", 1)

	rec, err := eng.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: "nb.ipynb"}, cache.DefaultCacheOptions())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	matched, err := eng.Match(t.Context(), doc)
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	if matched.Fingerprint != rec.Fingerprint {
		t.Fatalf("fingerprint mismatch: %s != %s", matched.Fingerprint, rec.Fingerprint)
	}
}

func TestCache_AlreadyCached_WithoutOverwrite_Errors(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)

	doc := execDoc("a=1", 1)

	_, err := eng.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: "nb.ipynb"}, cache.DefaultCacheOptions())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	_, err = eng.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: "nb.ipynb"}, cache.DefaultCacheOptions())
	if !errors.Is(err, cache.ErrAlreadyCached) {
		t.Fatalf("err = %v, want ErrAlreadyCached", err)
	}
}

func TestCache_Overwrite_ReplacesExisting(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)

	doc := execDoc("a=1", 1)

	first, err := eng.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: "nb.ipynb"}, cache.DefaultCacheOptions())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	opts := cache.DefaultCacheOptions()
	opts.Overwrite = true

	second, err := eng.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: "nb.ipynb"}, opts)
	if err != nil {
		t.Fatalf("cache overwrite: %v", err)
	}

	if first.ID == second.ID {
		t.Fatal("expected new record id after overwrite")
	}
}

func TestCache_InvalidNotebook_BadExecutionOrder(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)

	doc := execDoc("a=1", 2)

	_, err := eng.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: "nb.ipynb"}, cache.DefaultCacheOptions())
	if !errors.Is(err, cache.ErrInvalidNotebook) {
		t.Fatalf("err = %v, want ErrInvalidNotebook", err)
	}
}

func TestCache_Get_ReturnsStoredNotebook(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)

	doc := execDoc("a=1", 1)

	rec, err := eng.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: "nb.ipynb"}, cache.DefaultCacheOptions())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	bundle, err := eng.Get(t.Context(), rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(bundle.Notebook.Cells) != 1 {
		t.Fatalf("len(cells) = %d, want 1", len(bundle.Notebook.Cells))
	}
}

func TestCache_Remove_DeletesRecordAndBlob(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)

	doc := execDoc("a=1", 1)

	rec, err := eng.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: "nb.ipynb"}, cache.DefaultCacheOptions())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	err = eng.Remove(t.Context(), rec.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	_, err = eng.GetRecord(t.Context(), rec.ID)
	if !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCache_Match_RepeatedLookupUsesFingerprintCache(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)

	doc := execDoc("a=1", 1)

	rec, err := eng.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: "nb.ipynb"}, cache.DefaultCacheOptions())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	for i := 0; i < 3; i++ {
		matched, err := eng.Match(t.Context(), doc)
		if err != nil {
			t.Fatalf("match %d: %v", i, err)
		}

		if matched.ID != rec.ID {
			t.Fatalf("match %d: id = %d, want %d", i, matched.ID, rec.ID)
		}
	}

	if err := eng.Remove(t.Context(), rec.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	_, err = eng.Match(t.Context(), doc)
	if !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("match after remove: err = %v, want ErrNotFound", err)
	}
}

func TestCache_ArtifactRoundTrip(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)

	doc := execDoc("a=1", 1)

	rec, err := eng.Cache(t.Context(), cache.Bundle{
		Notebook:  doc,
		OriginURI: "nb.ipynb",
		Artifacts: []cache.ArtifactInput{{RelPath: "out/plot.bin", Content: strings.NewReader("B")}},
	}, cache.DefaultCacheOptions())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	_, err = eng.Get(t.Context(), rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestCache_Diff_OnlyReportsCodeCellChanges(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)

	doc := &notebook.Doc{
		FormatMajor: 4,
		FormatMinor: 5,
		Cells: []notebook.Cell{
			{Kind: notebook.KindProse, Source: "# intro"},
			execDoc("a=1", 1).Cells[0],
		},
	}

	rec, err := eng.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: "nb.ipynb"}, cache.DefaultCacheOptions())
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	candidate := &notebook.Doc{
		FormatMajor: 4,
		FormatMinor: 5,
		Cells: []notebook.Cell{
			{Kind: notebook.KindProse, Source: "different prose, should not surface in the diff"},
			execDoc("a=2", 1).Cells[0],
		},
	}

	diffs, err := eng.Diff(t.Context(), rec.ID, candidate)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if len(diffs) != 1 {
		t.Fatalf("len(diffs) = %d, want 1 (prose cell must be excluded)", len(diffs))
	}

	if diffs[0].Unchanged {
		t.Fatal("expected a changed diff for the code cell source edit")
	}

	if diffs[0].Index != 1 {
		t.Fatalf("diff index = %d, want 1 (the code cell's position)", diffs[0].Index)
	}
}

func TestCache_Eviction_KeepsAllRecordsUnderDefaultLimit(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)

	for i := 0; i < 3; i++ {
		doc := execDoc(fmt.Sprintf("x = %d", i), 1)

		_, err := eng.Cache(t.Context(), cache.Bundle{Notebook: doc, OriginURI: "nb.ipynb"}, cache.DefaultCacheOptions())
		if err != nil {
			t.Fatalf("cache %d: %v", i, err)
		}
	}

	stats, err := eng.Stats(t.Context())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if stats.RecordCount != 3 {
		t.Fatalf("record count = %d, want 3 (default limit is generous)", stats.RecordCount)
	}
}
