// Package reader implements the reader plug-in registry: a key ->
// function map that turns a notebook source at a URI into an
// in-memory notebook.Doc. The registry pattern follows
// allaspectsdev-tokenman's internal/plugin.Registry: a mutex-guarded map
// keyed by name, looked up by the caller instead of dispatched internally.
package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/notecache/notecache/internal/notebook"
)

// ErrReaderUnavailable is returned when a project record references an
// unknown reader key.
var ErrReaderUnavailable = errors.New("reader: unavailable")

// DefaultKey is the reader key for canonical JSON notebooks, and the
// default when a project record does not specify one.
const DefaultKey = "default"

// TextKey is the reader key for the lightweight percent-delimited text
// format.
const TextKey = "text"

// Func reads the notebook source found at path into memory.
type Func func(ctx context.Context, path string) (*notebook.Doc, error)

// Registry is a mutex-guarded map of reader key to Func.
type Registry struct {
	mu      sync.RWMutex
	readers map[string]Func
}

// NewRegistry returns a registry pre-populated with the built-in "default"
// (JSON) and "text" readers.
func NewRegistry() *Registry {
	r := &Registry{readers: make(map[string]Func)}

	r.Register(DefaultKey, readJSONFile)
	r.Register(TextKey, readTextFile)

	return r
}

// Register adds or replaces the reader for key.
func (r *Registry) Register(key string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.readers[key] = fn
}

// Get returns the reader for key, or ErrReaderUnavailable.
func (r *Registry) Get(key string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.readers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrReaderUnavailable, key)
	}

	return fn, nil
}

// Read looks up key and invokes the reader on path.
func (r *Registry) Read(ctx context.Context, key, path string) (*notebook.Doc, error) {
	fn, err := r.Get(key)
	if err != nil {
		return nil, err
	}

	doc, err := fn(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reader %q: %w", key, err)
	}

	return doc, nil
}

func readJSONFile(_ context.Context, path string) (*notebook.Doc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return notebook.Read(f)
}

func readTextFile(_ context.Context, path string) (*notebook.Doc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return notebook.ReadText(f)
}
