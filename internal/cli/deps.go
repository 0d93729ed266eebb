package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/notecache/notecache/internal/blobstore"
	"github.com/notecache/notecache/internal/cache"
	"github.com/notecache/notecache/internal/config"
	"github.com/notecache/notecache/internal/fingerprint"
	"github.com/notecache/notecache/internal/index"
	"github.com/notecache/notecache/internal/pipeline"
	"github.com/notecache/notecache/internal/project"
	"github.com/notecache/notecache/internal/reader"
)

// deps bundles every component wired on top of a resolved cache root,
// mirroring the way the teacher's commands close over a *ticket.Config.
type deps struct {
	idx      *index.Index
	blobs    *blobstore.Store
	engine   *cache.Engine
	projects *project.Registry
	readers  *reader.Registry
	pipe     *pipeline.Pipeline
}

func openDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	idx, err := index.Open(ctx, filepath.Join(cfg.CacheRootAbs, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("cli: open index: %w", err)
	}

	blobs := blobstore.Open(cfg.CacheRootAbs)

	engine, err := cache.Open(ctx, idx, blobs, fingerprint.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("cli: open cache engine: %w", err)
	}

	readers := reader.NewRegistry()
	projects := project.Open(idx, engine, readers)
	pipe := pipeline.Open(projects, engine)

	return &deps{
		idx:      idx,
		blobs:    blobs,
		engine:   engine,
		projects: projects,
		readers:  readers,
		pipe:     pipe,
	}, nil
}

func (d *deps) Close() error {
	return d.idx.Close()
}
