// Package blobstore implements the content-addressed on-disk store:
// stored notebooks and their artifact trees, keyed by fingerprint.
// Writes go through github.com/natefinch/atomic the same way
// the teacher's internal/ticket package durably writes ticket files, so a
// crash mid-write never leaves a half-written base.nb in place.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

const (
	executedDir  = "executed"
	baseNotebook = "base.nb"
	artifactsDir = "artifacts"
	versionFile  = "version.txt"
)

// Sentinel errors returned by the blob store.
var (
	// ErrInvalidArtifactPath is returned when an artifact's relative path
	// escapes the fingerprint's artifact tree (absolute, or containing "..").
	ErrInvalidArtifactPath = errors.New("blobstore: invalid artifact path")

	// ErrBlobNotFound is returned when no blob tree exists for a fingerprint.
	ErrBlobNotFound = errors.New("blobstore: blob not found")

	// ErrVersionMismatch is returned by CheckVersion when an existing
	// cache root's version.txt does not match the caller's expected
	// version string.
	ErrVersionMismatch = errors.New("blobstore: cache version mismatch")
)

// Store is the blob store rooted at a cache directory.
type Store struct {
	root string
}

// Open returns a Store rooted at root. Root must already exist; the cache
// engine is responsible for creating the top-level cache directory.
func Open(root string) *Store {
	return &Store{root: root}
}

// Root returns the cache-store root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) fingerprintDir(fingerprint string) string {
	return filepath.Join(s.root, executedDir, fingerprint)
}

func (s *Store) notebookPath(fingerprint string) string {
	return filepath.Join(s.fingerprintDir(fingerprint), baseNotebook)
}

func (s *Store) artifactsRoot(fingerprint string) string {
	return filepath.Join(s.fingerprintDir(fingerprint), artifactsDir)
}

// CheckVersion implements the version.txt migration guard: a fresh cache
// root adopts want as its version; an existing cache root whose
// version.txt disagrees with want returns ErrVersionMismatch rather than
// silently reading/writing an incompatible layout.
func (s *Store) CheckVersion(want string) error {
	path := filepath.Join(s.root, versionFile)

	got, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if mkErr := os.MkdirAll(s.root, 0o750); mkErr != nil {
			return fmt.Errorf("blobstore: create cache root: %w", mkErr)
		}

		writeErr := atomic.WriteFile(path, strings.NewReader(want))
		if writeErr != nil {
			return fmt.Errorf("blobstore: write version file: %w", writeErr)
		}

		return nil
	}

	if err != nil {
		return fmt.Errorf("blobstore: read version file: %w", err)
	}

	if strings.TrimSpace(string(got)) != want {
		return fmt.Errorf("%w: cache root has %q, want %q", ErrVersionMismatch, strings.TrimSpace(string(got)), want)
	}

	return nil
}

// HasBlob reports whether a notebook blob exists for fingerprint (used by
// the cache engine's startup sweep).
func (s *Store) HasBlob(fingerprint string) bool {
	_, err := os.Stat(s.notebookPath(fingerprint))

	return err == nil
}

// WriteNotebook writes the stored notebook bytes for fingerprint,
// creating the fingerprint directory tree if needed. The write is atomic
// (rename into place) but not synced to disk — only the final visible name
// is atomic, not fsync-durable against a crash mid-write.
func (s *Store) WriteNotebook(_ context.Context, fingerprint string, data []byte) error {
	dir := s.fingerprintDir(fingerprint)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return fmt.Errorf("blobstore: create fingerprint dir: %w", err)
	}

	err = atomic.WriteFile(s.notebookPath(fingerprint), strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("blobstore: write notebook: %w", err)
	}

	return nil
}

// ReadNotebook returns the stored notebook bytes for fingerprint, or
// ErrBlobNotFound.
func (s *Store) ReadNotebook(_ context.Context, fingerprint string) ([]byte, error) {
	data, err := os.ReadFile(s.notebookPath(fingerprint))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("blobstore: read notebook: %w", err)
	}

	return data, nil
}

// Artifact is one file in an artifact tree: a path relative to the
// fingerprint's artifacts/ directory, paired with its content.
type Artifact struct {
	RelPath string
	Content io.Reader
}

// WriteArtifacts streams each artifact into the fingerprint's artifacts/
// tree. Every relative path is validated with ValidateArtifactPath before
// anything is written; the first invalid path aborts the whole call.
func (s *Store) WriteArtifacts(_ context.Context, fingerprint string, artifacts []Artifact) error {
	for _, a := range artifacts {
		if err := ValidateArtifactPath(a.RelPath); err != nil {
			return err
		}
	}

	root := s.artifactsRoot(fingerprint)

	for _, a := range artifacts {
		dest := filepath.Join(root, filepath.FromSlash(a.RelPath))

		err := os.MkdirAll(filepath.Dir(dest), 0o750)
		if err != nil {
			return fmt.Errorf("blobstore: create artifact dir: %w", err)
		}

		err = atomic.WriteFile(dest, a.Content)
		if err != nil {
			return fmt.Errorf("blobstore: write artifact %s: %w", a.RelPath, err)
		}
	}

	return nil
}

// IterArtifacts walks the fingerprint's artifact tree and calls visit for
// every file, with paths relative to artifacts/ using forward slashes.
func (s *Store) IterArtifacts(_ context.Context, fingerprint string, visit func(relPath string, content io.Reader) error) error {
	root := s.artifactsRoot(fingerprint)

	_, err := os.Stat(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("blobstore: stat artifacts root: %w", err)
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if info.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return fmt.Errorf("blobstore: relative artifact path: %w", relErr)
		}

		f, openErr := os.Open(path)
		if openErr != nil {
			return fmt.Errorf("blobstore: open artifact %s: %w", rel, openErr)
		}
		defer f.Close()

		return visit(filepath.ToSlash(rel), f)
	})
}

// RemoveTree deletes the entire fingerprint directory (notebook and
// artifacts). No error if it does not exist.
func (s *Store) RemoveTree(fingerprint string) error {
	err := os.RemoveAll(s.fingerprintDir(fingerprint))
	if err != nil {
		return fmt.Errorf("blobstore: remove tree %s: %w", fingerprint, err)
	}

	return nil
}

// ListFingerprints returns every fingerprint with a directory under
// executed/, used by the cache engine's startup orphan sweep.
func (s *Store) ListFingerprints() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, executedDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("blobstore: list fingerprints: %w", err)
	}

	fingerprints := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() {
			fingerprints = append(fingerprints, e.Name())
		}
	}

	return fingerprints, nil
}

// Size returns the approximate total number of bytes stored under
// executed/, used by the cache stats operation.
func (s *Store) Size() (int64, error) {
	root := filepath.Join(s.root, executedDir)

	var total int64

	err := filepath.Walk(root, func(_ string, info os.FileInfo, walkErr error) error {
		if errors.Is(walkErr, os.ErrNotExist) {
			return nil
		}

		if walkErr != nil {
			return walkErr
		}

		if !info.IsDir() {
			total += info.Size()
		}

		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("blobstore: size: %w", err)
	}

	return total, nil
}

// ClearAll deletes every fingerprint directory under the store root.
func (s *Store) ClearAll() error {
	err := os.RemoveAll(filepath.Join(s.root, executedDir))
	if err != nil {
		return fmt.Errorf("blobstore: clear all: %w", err)
	}

	return nil
}

// ValidateArtifactPath rejects absolute paths and any path containing a
// ".." component.
func ValidateArtifactPath(relPath string) error {
	if relPath == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidArtifactPath)
	}

	cleaned := filepath.ToSlash(filepath.Clean(relPath))

	if filepath.IsAbs(relPath) || strings.HasPrefix(cleaned, "/") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidArtifactPath, relPath)
	}

	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return fmt.Errorf("%w: %q escapes artifact root", ErrInvalidArtifactPath, relPath)
		}
	}

	return nil
}
