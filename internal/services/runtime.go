// Package services holds the business logic behind the CLI commands: it
// wires the compile pipeline from configuration and runs the startup
// sequence before anything is served.
package services

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/conneroisu/roaster/internal/build"
	"github.com/conneroisu/roaster/internal/config"
	"github.com/conneroisu/roaster/internal/errors"
	"github.com/conneroisu/roaster/internal/logging"
	"github.com/spf13/afero"
)

// Runtime is the set of components shared by every command. Each is built
// once from configuration and injected where it is needed.
type Runtime struct {
	Config   *config.Config
	Fs       afero.Fs
	Tree     *build.SourceTree
	Store    *build.ArtifactStore
	Pipeline *build.Pipeline
	Logger   logging.Logger
}

// NewRuntime builds a runtime over the OS filesystem rooted at
// assets.root.
func NewRuntime(cfg *config.Config, logger logging.Logger) (*Runtime, error) {
	root, err := filepath.Abs(cfg.Assets.Root)
	if err != nil {
		return nil, errors.FileOperationError("RESOLVE_ROOT", cfg.Assets.Root, "cannot resolve application root", err)
	}
	return NewRuntimeWithFs(cfg, afero.NewBasePathFs(afero.NewOsFs(), root), root, logger), nil
}

// NewRuntimeWithFs builds a runtime over fs. root is the OS directory fs is
// based at.
func NewRuntimeWithFs(cfg *config.Config, fs afero.Fs, root string, logger logging.Logger) *Runtime {
	if logger == nil {
		logger = logging.Discard()
	}

	store := build.NewArtifactStore(fs, cfg.UsesPrecompiledDir())
	pipeline := build.NewPipeline(
		build.NewBackend(cfg, logger),
		build.NewMinifier(cfg, logger),
		store,
		logger,
	)

	return &Runtime{
		Config:   cfg,
		Fs:       fs,
		Tree:     build.NewSourceTree(fs, root),
		Store:    store,
		Pipeline: pipeline,
		Logger:   logger,
	}
}

// Prepare runs the startup sequence: compiled output from an earlier run is
// purged unless precompiled artifacts are being reused, then production
// deployments precompile every source. It returns the precompile report,
// or nil when no precompilation ran.
func (rt *Runtime) Prepare(ctx context.Context) (*build.PrecompileReport, error) {
	if rt.Config.ShouldPurge() {
		if err := rt.Clean(ctx); err != nil {
			return nil, err
		}
	}
	if !rt.Config.ShouldPrecompile() {
		return nil, nil
	}
	return rt.Precompile(ctx)
}

// Clean removes every compiled artifact of the active store.
func (rt *Runtime) Clean(ctx context.Context) error {
	if err := rt.Store.Purge(); err != nil {
		return err
	}
	rt.Logger.Info(ctx, "Purged compiled assets", "dir", rt.Store.Root())
	return nil
}

// Precompile compiles every source below assets.dir.
func (rt *Runtime) Precompile(ctx context.Context) (*build.PrecompileReport, error) {
	pc := build.NewPrecompiler(rt.Tree, rt.Pipeline, rt.Config.Assets.Dir, rt.Config.Build.Workers, rt.Logger)
	report, err := pc.Run(ctx)
	if err != nil {
		return report, errors.PrecompileServiceError("RUN", fmt.Sprintf("cannot precompile %s", rt.Config.Assets.Dir), err)
	}
	return report, nil
}
