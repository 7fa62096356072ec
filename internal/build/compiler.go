// Package build turns CoffeeScript sources into served JavaScript: the
// compilation backends, the optional minifier, the persisted artifact store,
// the deduplicating compile pipeline and the bulk precompiler.
package build

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/roaster/internal/coffee"
	"github.com/conneroisu/roaster/internal/config"
	"github.com/conneroisu/roaster/internal/errors"
	"github.com/conneroisu/roaster/internal/logging"
)

// Backend compiles one source to JavaScript. Compilation failures are
// returned as *errors.CompileError.
type Backend interface {
	Compile(ctx context.Context, src *Source) (string, error)
	Name() string
}

// NewBackend selects the backend once from configuration: a configured
// coffee.native executable wins over the embedded compiler.
func NewBackend(cfg *config.Config, logger logging.Logger) Backend {
	if cfg.Coffee.Native != "" {
		return NewExternalBackend(cfg.Coffee.Native, cfg.Coffee.Timeout, logger)
	}
	return NewEmbeddedBackend()
}

// EmbeddedBackend compiles in process. Compilers are not safe for
// concurrent use, so each call takes one from a pool for its duration.
type EmbeddedBackend struct {
	pool sync.Pool
}

// NewEmbeddedBackend creates an embedded backend whose compilers use opts.
func NewEmbeddedBackend(opts ...coffee.Option) *EmbeddedBackend {
	b := &EmbeddedBackend{}
	b.pool.New = func() interface{} {
		return coffee.NewCompiler(opts...)
	}
	return b
}

// Name implements Backend.
func (b *EmbeddedBackend) Name() string {
	return "embedded"
}

// Compile implements Backend.
func (b *EmbeddedBackend) Compile(ctx context.Context, src *Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := b.pool.Get().(*coffee.Compiler)
	defer b.pool.Put(c)

	js, err := c.Compile(src.Content)
	if err != nil {
		return "", errors.NewCompileError(src.Path, err.Error(), err)
	}
	return js, nil
}

// ExternalBackend runs `<executable> -p <file>` and takes stdout as the
// compiled text.
type ExternalBackend struct {
	executable string
	timeout    time.Duration
	logger     logging.Logger
}

// NewExternalBackend creates a backend for a native coffee executable.
func NewExternalBackend(executable string, timeout time.Duration, logger logging.Logger) *ExternalBackend {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ExternalBackend{
		executable: executable,
		timeout:    timeout,
		logger:     logger.WithComponent("coffee"),
	}
}

// Name implements Backend.
func (b *ExternalBackend) Name() string {
	return "external"
}

// Compile implements Backend. Output on stderr is logged but only a
// failed exit, a launch failure or a timeout fails the compilation.
func (b *ExternalBackend) Compile(ctx context.Context, src *Source) (string, error) {
	res, err := runProcess(ctx, b.timeout, b.executable, []string{"-p", src.AbsPath}, nil)
	stderr := strings.TrimSpace(res.Stderr)

	if err != nil {
		message := stderr
		if message == "" {
			message = err.Error()
		}
		return "", errors.NewCompileError(src.Path, message, err)
	}

	if stderr != "" {
		b.logger.Warn(ctx, nil, "Compiler wrote to stderr",
			"file", src.Path,
			"stderr", stderr)
	}
	return res.Stdout, nil
}
