package reader_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/notecache/notecache/internal/notebook"
	"github.com/notecache/notecache/internal/reader"
)

func TestRegistry_Read_Default(t *testing.T) {
	t.Parallel()

	doc := &notebook.Doc{FormatMajor: 4, FormatMinor: 5}

	b, err := notebook.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	path := filepath.Join(t.TempDir(), "nb.ipynb")

	err = os.WriteFile(path, b, 0o600)
	if err != nil {
		t.Fatalf("write file: %v", err)
	}

	reg := reader.NewRegistry()

	got, err := reg.Read(t.Context(), reader.DefaultKey, path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if got.FormatMajor != 4 {
		t.Fatalf("format major = %d, want 4", got.FormatMajor)
	}
}

func TestRegistry_Read_UnknownKey(t *testing.T) {
	t.Parallel()

	reg := reader.NewRegistry()

	_, err := reg.Read(t.Context(), "does-not-exist", "nb.ipynb")
	if !errors.Is(err, reader.ErrReaderUnavailable) {
		t.Fatalf("err = %v, want ErrReaderUnavailable", err)
	}
}

func TestRegistry_Register_Override(t *testing.T) {
	t.Parallel()

	reg := reader.NewRegistry()

	called := false
	reg.Register("custom", func(_ context.Context, _ string) (*notebook.Doc, error) {
		called = true
		return &notebook.Doc{}, nil
	})

	_, err := reg.Get("custom")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	_, err = reg.Read(t.Context(), "custom", "ignored")
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if !called {
		t.Fatal("custom reader was not invoked")
	}
}
