package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/notecache/notecache/internal/cache"
	"github.com/notecache/notecache/internal/executor"
	"github.com/notecache/notecache/internal/obs"
	"github.com/notecache/notecache/internal/project"
)

// Pipeline drives outdated project entries through an executor and feeds
// successful runs back into the cache engine (C4).
type Pipeline struct {
	projects *project.Registry
	engine   *cache.Engine
}

// Open wires a Pipeline over an already-open project registry and cache engine.
func Open(projects *project.Registry, engine *cache.Engine) *Pipeline {
	return &Pipeline{projects: projects, engine: engine}
}

// Run executes every outdated project entry and returns the aggregate
// result.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Executor == nil {
		return Result{}, errors.New("pipeline: opts.Executor is required")
	}

	outdated, err := p.projects.Unexecuted(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: list unexecuted: %w", err)
	}

	selected := filterRecords(outdated, opts.URIs, opts.IDs)

	for _, rec := range selected {
		if err := p.projects.SetTraceback(ctx, rec.URI, nil); err != nil {
			return Result{}, fmt.Errorf("pipeline: clear traceback for %s: %w", rec.URI, err)
		}
	}

	runID := uuid.NewString()
	result := &Result{RunID: runID}

	var mu sync.Mutex

	record := func(fn func(*Result)) {
		mu.Lock()
		defer mu.Unlock()
		fn(result)
	}

	obs.Log().Info().Str("run_id", runID).Int("count", len(selected)).Msg("execution run starting")

	process := func(ctx context.Context, rec project.Record) error {
		p.runOne(ctx, rec, runID, opts, record)

		return nil
	}

	switch opts.Scheduling {
	case SchedulingParallel:
		workers := opts.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}

		group, gctx := errgroup.WithContext(ctx)
		group.SetLimit(workers)

		for _, rec := range selected {
			rec := rec

			group.Go(func() error { return process(gctx, rec) })
		}

		_ = group.Wait()
	default:
		for _, rec := range selected {
			if ctx.Err() != nil {
				break
			}

			_ = process(ctx, rec)
		}
	}

	return *result, nil
}

func (p *Pipeline) runOne(ctx context.Context, rec project.Record, runID string, opts Options, record func(func(*Result))) {
	log := obs.Log().With().Str("run_id", runID).Str("uri", rec.URI).Logger()

	doc, err := p.projects.NotebookOf(ctx, rec)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load notebook")
		record(func(r *Result) { r.addErrored(rec.URI) })

		return
	}

	sandbox, cleanup, err := prepareSandbox(opts.Sandbox, rec.URI, rec.Assets)
	if err != nil {
		log.Warn().Err(err).Msg("failed to prepare sandbox")
		record(func(r *Result) { r.addErrored(rec.URI) })

		return
	}
	defer cleanup()

	execResult, err := opts.Executor.ExecuteInPlace(ctx, doc, executor.Options{
		PerCellTimeout: opts.PerCellTimeout,
		AllowErrors:    opts.AllowErrors,
		WorkingDir:     sandbox,
	})
	if err != nil {
		log.Warn().Err(err).Msg("executor raised")
		record(func(r *Result) { r.addErrored(rec.URI) })

		return
	}

	switch execResult.Outcome {
	case executor.SucceededWithoutCellError:
		artifacts, artErr := collectSandboxArtifacts(opts.Sandbox, sandbox, rec.Assets, rec.URI)
		if artErr != nil {
			log.Warn().Err(artErr).Msg("failed to collect artifacts")
			record(func(r *Result) { r.addErrored(rec.URI) })

			return
		}

		_, cacheErr := p.engine.Cache(ctx, cache.Bundle{
			Notebook:  execResult.Notebook,
			OriginURI: rec.URI,
			Artifacts: artifacts,
		}, cache.CacheOptions{CheckValidity: false, Overwrite: true})
		if cacheErr != nil {
			log.Warn().Err(cacheErr).Msg("failed to cache execution result")
			record(func(r *Result) { r.addErrored(rec.URI) })

			return
		}

		log.Info().Msg("execution succeeded")
		record(func(r *Result) { r.addSucceeded(rec.URI) })
	case executor.SucceededWithCellError:
		if tbErr := p.projects.SetTraceback(ctx, rec.URI, &execResult.Traceback); tbErr != nil {
			log.Warn().Err(tbErr).Msg("failed to persist traceback")
		}

		log.Info().Msg("cell exception")
		record(func(r *Result) { r.addExcepted(rec.URI) })
	case executor.ExecutorRaised:
		record(func(r *Result) { r.addErrored(rec.URI) })
	}
}

func collectSandboxArtifacts(mode SandboxMode, sandbox string, assets []string, notebookURI string) ([]cache.ArtifactInput, error) {
	if mode != SandboxTempDir {
		return nil, nil
	}

	parent := filepath.Dir(notebookURI)

	assetRelPaths := make(map[string]bool, len(assets))

	for _, a := range assets {
		rel, err := filepath.Rel(parent, a)
		if err != nil {
			return nil, fmt.Errorf("pipeline: relative asset path %s: %w", a, err)
		}

		assetRelPaths[filepath.ToSlash(rel)] = true
	}

	var artifacts []cache.ArtifactInput

	err := filepath.WalkDir(sandbox, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(sandbox, path)
		if relErr != nil {
			return relErr
		}

		relSlash := filepath.ToSlash(rel)
		if assetRelPaths[relSlash] {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}

		artifacts = append(artifacts, cache.ArtifactInput{
			RelPath: relSlash,
			Content: strings.NewReader(string(data)),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: walk sandbox: %w", err)
	}

	return artifacts, nil
}

func filterRecords(records []project.Record, uris []string, ids []int64) []project.Record {
	if len(uris) == 0 && len(ids) == 0 {
		return records
	}

	uriSet := make(map[string]bool, len(uris))
	for _, u := range uris {
		uriSet[u] = true
	}

	idSet := make(map[int64]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	var out []project.Record

	for _, rec := range records {
		if uriSet[rec.URI] || idSet[rec.ID] {
			out = append(out, rec)
		}
	}

	return out
}
