package services

import (
	"context"
	"fmt"
	"time"

	"github.com/conneroisu/roaster/internal/build"
	"github.com/conneroisu/roaster/internal/errors"
	"github.com/conneroisu/roaster/internal/logging"
)

// PrecompileService handles bulk precompilation and cleanup of compiled
// assets.
type PrecompileService struct {
	runtime *Runtime
}

// NewPrecompileService creates a new precompile service
func NewPrecompileService(rt *Runtime) *PrecompileService {
	return &PrecompileService{runtime: rt}
}

// PrecompileOptions contains options for the precompile process
type PrecompileOptions struct {
	// Clean purges the compiled tree before compiling.
	Clean bool
	// Strict turns any failed source into an error.
	Strict bool
}

// PrecompileResult contains the result of a precompile operation
type PrecompileResult struct {
	Duration time.Duration
	Dir      string
	Report   *build.PrecompileReport
}

// Precompile compiles every source below assets.dir into the store.
func (s *PrecompileService) Precompile(ctx context.Context, opts PrecompileOptions) (*PrecompileResult, error) {
	rt := s.runtime
	op := logging.StartOperation(rt.Logger, "precompile_command")
	result := &PrecompileResult{Dir: rt.Store.Root()}

	if opts.Clean {
		if err := rt.Clean(ctx); err != nil {
			op.EndWithError(ctx, err)
			return result, errors.PrecompileServiceError("CLEAN", "cannot purge compiled assets", err)
		}
	}

	report, err := rt.Precompile(ctx)
	result.Report = report
	if report != nil {
		result.Duration = report.Duration
	}
	if err != nil {
		op.EndWithError(ctx, err)
		return result, err
	}

	if opts.Strict && report.Failed > 0 {
		err := errors.PrecompileServiceError("FAILURES",
			fmt.Sprintf("%d of %d sources failed to compile", report.Failed, report.Failed+report.Compiled), nil)
		op.EndWithError(ctx, err)
		return result, err
	}

	op.End(ctx, "compiled", report.Compiled, "failed", report.Failed)
	return result, nil
}

// Clean purges the compiled tree.
func (s *PrecompileService) Clean(ctx context.Context) error {
	if err := s.runtime.Clean(ctx); err != nil {
		return errors.PrecompileServiceError("CLEAN", "cannot purge compiled assets", err)
	}
	return nil
}
