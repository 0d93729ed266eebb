package blobstore

import (
	"context"
	"fmt"
)

// ArtifactScope is the directory handle returned by TempArtifactPath. Its
// Path is only guaranteed valid until Close is called.
type ArtifactScope struct {
	Path string

	close func() error
}

// Close releases the scope. In the directory-backed storage used here,
// artifacts already live on disk as a plain directory tree, so Close is a
// no-op — no materialization is needed in the common case.
func (s *ArtifactScope) Close() error {
	if s.close == nil {
		return nil
	}

	return s.close()
}

// TempArtifactPath returns a scope whose Path is the fingerprint's
// artifacts/ directory, creating it if absent, for read/copy use by
// callers such as the execution pipeline's sandbox setup.
func (s *Store) TempArtifactPath(_ context.Context, fingerprint string) (*ArtifactScope, error) {
	root := s.artifactsRoot(fingerprint)

	err := ensureDir(root)
	if err != nil {
		return nil, fmt.Errorf("blobstore: temp artifact path: %w", err)
	}

	return &ArtifactScope{Path: root}, nil
}
