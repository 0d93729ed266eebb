package index_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/notecache/notecache/internal/index"
)

func openTest(t *testing.T) *index.Index {
	t.Helper()

	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := index.Open(t.Context(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() { _ = idx.Close() })

	return idx
}

func Test_Open_Creates_Schema_On_Empty_File(t *testing.T) {
	t.Parallel()

	idx := openTest(t)

	limit, err := idx.CacheLimit(t.Context())
	if err != nil {
		t.Fatalf("cache limit: %v", err)
	}

	if limit != index.DefaultCacheLimit {
		t.Fatalf("cache limit = %d, want default %d", limit, index.DefaultCacheLimit)
	}
}

func Test_CreateCacheRecord_RejectsDuplicateFingerprint(t *testing.T) {
	t.Parallel()

	idx := openTest(t)

	rec := index.CacheRecord{Fingerprint: "abc123", OriginURI: "nb.ipynb"}

	_, err := idx.CreateCacheRecord(t.Context(), rec)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = idx.CreateCacheRecord(t.Context(), rec)
	if !errors.Is(err, index.ErrDuplicateFingerprint) {
		t.Fatalf("err = %v, want ErrDuplicateFingerprint", err)
	}
}

func Test_LookupCacheByFingerprint_NotFound(t *testing.T) {
	t.Parallel()

	idx := openTest(t)

	_, err := idx.LookupCacheByFingerprint(t.Context(), "missing")
	if !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func Test_LookupCacheByID_RoundTrip(t *testing.T) {
	t.Parallel()

	idx := openTest(t)

	created, err := idx.CreateCacheRecord(t.Context(), index.CacheRecord{Fingerprint: "abc123", OriginURI: "nb.ipynb"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := idx.LookupCacheByID(t.Context(), created.ID)
	if err != nil {
		t.Fatalf("lookup by id: %v", err)
	}

	if found.Fingerprint != created.Fingerprint {
		t.Fatalf("fingerprint = %s, want %s", found.Fingerprint, created.Fingerprint)
	}

	_, err = idx.LookupCacheByID(t.Context(), created.ID+1)
	if !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func Test_Touch_UpdatesAccessedAt(t *testing.T) {
	t.Parallel()

	idx := openTest(t)

	created, err := idx.CreateCacheRecord(t.Context(), index.CacheRecord{
		Fingerprint: "fp1",
		OriginURI:   "nb.ipynb",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = idx.Touch(t.Context(), created.Fingerprint)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := idx.LookupCacheByFingerprint(t.Context(), created.Fingerprint)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	if got.AccessedAt.Before(created.AccessedAt) {
		t.Fatalf("accessed_at did not advance: %v before %v", got.AccessedAt, created.AccessedAt)
	}
}

func Test_OldestCacheRecords_OrdersByAccessedAt(t *testing.T) {
	t.Parallel()

	idx := openTest(t)

	for _, fp := range []string{"a", "b", "c"} {
		_, err := idx.CreateCacheRecord(t.Context(), index.CacheRecord{Fingerprint: fp, OriginURI: "nb.ipynb"})
		if err != nil {
			t.Fatalf("create %s: %v", fp, err)
		}
	}

	err := idx.Touch(t.Context(), "a")
	if err != nil {
		t.Fatalf("touch a: %v", err)
	}

	oldest, err := idx.OldestCacheRecords(t.Context(), 1)
	if err != nil {
		t.Fatalf("oldest: %v", err)
	}

	if len(oldest) != 1 {
		t.Fatalf("len(oldest) = %d, want 1", len(oldest))
	}

	if oldest[0].Fingerprint == "a" {
		t.Fatal("touched record returned as oldest")
	}
}

func Test_RemoveCacheRecords_DeletesGivenFingerprints(t *testing.T) {
	t.Parallel()

	idx := openTest(t)

	for _, fp := range []string{"x", "y"} {
		_, err := idx.CreateCacheRecord(t.Context(), index.CacheRecord{Fingerprint: fp, OriginURI: "nb.ipynb"})
		if err != nil {
			t.Fatalf("create %s: %v", fp, err)
		}
	}

	removed, err := idx.RemoveCacheRecords(t.Context(), []string{"x"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	_, err = idx.LookupCacheByFingerprint(t.Context(), "x")
	if !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after removal", err)
	}

	_, err = idx.LookupCacheByFingerprint(t.Context(), "y")
	if err != nil {
		t.Fatalf("y should remain: %v", err)
	}
}

func Test_CreateProjectRecord_DuplicateURI_ReturnsExisting(t *testing.T) {
	t.Parallel()

	idx := openTest(t)

	first, err := idx.CreateProjectRecord(t.Context(), index.ProjectRecord{URI: "proj.ipynb"}, true)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}

	second, err := idx.CreateProjectRecord(t.Context(), index.ProjectRecord{URI: "proj.ipynb"}, true)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected same record, got ids %d and %d", first.ID, second.ID)
	}
}

func Test_CreateProjectRecord_DuplicateURI_WithoutGetIfExists_Errors(t *testing.T) {
	t.Parallel()

	idx := openTest(t)

	_, err := idx.CreateProjectRecord(t.Context(), index.ProjectRecord{URI: "proj.ipynb"}, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = idx.CreateProjectRecord(t.Context(), index.ProjectRecord{URI: "proj.ipynb"}, false)
	if !errors.Is(err, index.ErrDuplicateURI) {
		t.Fatalf("err = %v, want ErrDuplicateURI", err)
	}
}

func Test_SetTraceback_And_ClearTracebacks(t *testing.T) {
	t.Parallel()

	idx := openTest(t)

	_, err := idx.CreateProjectRecord(t.Context(), index.ProjectRecord{URI: "proj.ipynb"}, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tb := "boom"

	err = idx.SetTraceback(t.Context(), "proj.ipynb", &tb)
	if err != nil {
		t.Fatalf("set traceback: %v", err)
	}

	rec, err := idx.LookupProjectByURI(t.Context(), "proj.ipynb")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	if rec.Traceback == nil || *rec.Traceback != tb {
		t.Fatalf("traceback = %v, want %q", rec.Traceback, tb)
	}

	err = idx.ClearTracebacks(t.Context())
	if err != nil {
		t.Fatalf("clear tracebacks: %v", err)
	}

	rec, err = idx.LookupProjectByURI(t.Context(), "proj.ipynb")
	if err != nil {
		t.Fatalf("lookup after clear: %v", err)
	}

	if rec.Traceback != nil {
		t.Fatalf("traceback = %v, want nil after clear", *rec.Traceback)
	}
}

func Test_Settings_GetSet_RoundTrip(t *testing.T) {
	t.Parallel()

	idx := openTest(t)

	_, err := idx.GetSetting(t.Context(), "unset")
	if !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	err = idx.SetSetting(t.Context(), index.SettingCacheLimit, "42")
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	limit, err := idx.CacheLimit(t.Context())
	if err != nil {
		t.Fatalf("cache limit: %v", err)
	}

	if limit != 42 {
		t.Fatalf("cache limit = %d, want 42", limit)
	}
}
