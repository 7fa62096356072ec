package build

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/conneroisu/roaster/internal/errors"
	"github.com/conneroisu/roaster/internal/logging"
	"golang.org/x/sync/errgroup"
)

// PrecompileReport summarizes a precompilation run.
type PrecompileReport struct {
	Compiled int
	Failed   int
	Failures []PrecompileFailure
	Duration time.Duration
}

// PrecompileFailure records one source that did not compile.
type PrecompileFailure struct {
	Path string
	Err  error
}

// Precompiler compiles every source below an asset directory ahead of
// serving, so production requests are answered from the store.
type Precompiler struct {
	// tree supplies the sources to compile
	tree *SourceTree
	// pipeline compiles and stores each source
	pipeline *Pipeline
	// dir is the asset directory walked for sources
	dir string
	// workers bounds the number of concurrent compilations
	workers int
	logger  logging.Logger
}

// NewPrecompiler creates a precompiler over the sources below dir.
func NewPrecompiler(tree *SourceTree, pipeline *Pipeline, dir string, workers int, logger logging.Logger) *Precompiler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Precompiler{
		tree:     tree,
		pipeline: pipeline,
		dir:      dir,
		workers:  workers,
		logger:   logger.WithComponent("precompiler"),
	}
}

// Run compiles every source. A failing source is logged and counted but
// never stops the run; an error is returned only when the sources cannot
// be listed or ctx is cancelled.
func (pc *Precompiler) Run(ctx context.Context) (*PrecompileReport, error) {
	op := logging.StartOperation(pc.logger, "precompile")
	start := time.Now()

	var paths []string
	err := pc.tree.Walk(pc.dir, func(rel string) error {
		paths = append(paths, rel)
		return nil
	})
	if err != nil && !errors.IsNotExist(err) {
		op.EndWithError(ctx, err)
		return nil, err
	}
	if err != nil {
		pc.logger.Warn(ctx, err, "Asset directory does not exist, nothing to precompile", "dir", pc.dir)
	}

	report := &PrecompileReport{}
	var entries []ManifestEntry
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pc.workers)

	for _, rel := range paths {
		rel := rel
		g.Go(func() error {
			entry, err := pc.compileOne(gctx, rel)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				report.Failed++
				report.Failures = append(report.Failures, PrecompileFailure{Path: rel, Err: err})
				pc.logger.Error(gctx, err, "Precompilation failed", "path", rel)
				return nil
			}

			report.Compiled++
			entries = append(entries, entry)
			pc.logger.Info(gctx, "Precompiled asset", "path", rel)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		op.EndWithError(ctx, err)
		return report, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Path < report.Failures[j].Path })

	manifest := &Manifest{
		GeneratedAt: time.Now().UTC(),
		Backend:     pc.pipeline.Backend().Name(),
		Assets:      entries,
	}
	if err := pc.pipeline.Store().WriteManifest(manifest); err != nil {
		pc.logger.Warn(ctx, err, "Cannot write precompile manifest")
	}

	report.Duration = time.Since(start)
	op.End(ctx,
		"compiled", report.Compiled,
		"failed", report.Failed)
	return report, nil
}

func (pc *Precompiler) compileOne(ctx context.Context, rel string) (ManifestEntry, error) {
	src, err := pc.tree.Load(rel)
	if err != nil {
		return ManifestEntry{}, err
	}
	js, err := pc.pipeline.Compile(ctx, src)
	if err != nil {
		return ManifestEntry{}, err
	}
	return ManifestEntry{
		Path:    src.Path,
		ModTime: src.ModTime.UTC(),
		Digest:  fmt.Sprintf("%016x", xxhash.Sum64String(js)),
	}, nil
}
