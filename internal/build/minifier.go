package build

import (
	"context"
	"strings"
	"time"

	"github.com/conneroisu/roaster/internal/config"
	"github.com/conneroisu/roaster/internal/logging"
)

// Minifier shrinks compiled JavaScript. Minification never fails the
// request: on any problem the input is returned unchanged.
type Minifier interface {
	Minify(ctx context.Context, js string) string
}

// NewMinifier returns an ExternalMinifier when uglifyjs.path is configured
// and the application runs in production, otherwise a NopMinifier.
func NewMinifier(cfg *config.Config, logger logging.Logger) Minifier {
	if cfg.UglifyJS.Path != "" && cfg.IsProduction() {
		return NewExternalMinifier(cfg.UglifyJS.Path, cfg.UglifyJS.Timeout, logger)
	}
	return NopMinifier{}
}

// NopMinifier returns its input.
type NopMinifier struct{}

// Minify implements Minifier.
func (NopMinifier) Minify(_ context.Context, js string) string {
	return js
}

// ExternalMinifier pipes JavaScript through an uglifyjs compatible
// executable on stdin and reads the result from stdout.
type ExternalMinifier struct {
	executable string
	timeout    time.Duration
	logger     logging.Logger
}

// NewExternalMinifier creates a minifier around executable.
func NewExternalMinifier(executable string, timeout time.Duration, logger logging.Logger) *ExternalMinifier {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ExternalMinifier{
		executable: executable,
		timeout:    timeout,
		logger:     logger.WithComponent("minifier"),
	}
}

// Minify implements Minifier.
func (m *ExternalMinifier) Minify(ctx context.Context, js string) string {
	res, err := runProcess(ctx, m.timeout, m.executable, nil, strings.NewReader(js))
	stderr := strings.TrimSpace(res.Stderr)

	if err != nil {
		m.logger.Warn(ctx, err, "Minification failed, serving unminified output",
			"executable", m.executable,
			"stderr", stderr)
		return js
	}
	if stderr != "" {
		m.logger.Warn(ctx, nil, "Minifier wrote to stderr",
			"executable", m.executable,
			"stderr", stderr)
	}
	if strings.TrimSpace(res.Stdout) == "" {
		m.logger.Warn(ctx, nil, "Minifier produced no output, serving unminified output",
			"executable", m.executable)
		return js
	}
	return res.Stdout
}
