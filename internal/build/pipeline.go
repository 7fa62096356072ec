package build

import (
	"context"
	"strconv"
	"time"

	"github.com/conneroisu/roaster/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Pipeline serves compiled JavaScript for sources, compiling on a cache
// miss or when the stored artifact is older than its source. It is the only
// writer of its ArtifactStore.
type Pipeline struct {
	backend  Backend
	minifier Minifier
	store    *ArtifactStore
	logger   logging.Logger
	metrics  *BuildMetrics
	group    singleflight.Group
}

// NewPipeline creates a compile pipeline. A nil minifier disables
// minification.
func NewPipeline(backend Backend, minifier Minifier, store *ArtifactStore, logger logging.Logger) *Pipeline {
	if minifier == nil {
		minifier = NopMinifier{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{
		backend:  backend,
		minifier: minifier,
		store:    store,
		logger:   logger.WithComponent("pipeline"),
		metrics:  NewBuildMetrics(),
	}
}

// Backend returns the compilation backend in use.
func (p *Pipeline) Backend() Backend {
	return p.backend
}

// Store returns the artifact store the pipeline writes to.
func (p *Pipeline) Store() *ArtifactStore {
	return p.store
}

// Metrics returns a snapshot of the pipeline metrics.
func (p *Pipeline) Metrics() MetricsSnapshot {
	return p.metrics.GetSnapshot()
}

// Compile returns the JavaScript for src. A fresh stored artifact is
// returned without compiling. Concurrent requests for the same source
// version share one compilation. Compile failures are returned untouched
// and never stored.
func (p *Pipeline) Compile(ctx context.Context, src *Source) (string, error) {
	start := time.Now()

	cached, err := p.store.Lookup(src.Path)
	if err != nil {
		return "", err
	}
	if !p.store.IsStale(cached, src.ModTime) {
		p.metrics.RecordCompile(CompileResult{
			Path:     src.Path,
			Duration: time.Since(start),
			CacheHit: true,
		})
		return cached.Text, nil
	}

	key := src.Path + "@" + strconv.FormatInt(src.ModTime.UnixNano(), 10)
	v, err, shared := p.group.Do(key, func() (interface{}, error) {
		return p.compile(context.WithoutCancel(ctx), src)
	})
	if err != nil {
		return "", err
	}
	if shared {
		p.logger.Debug(ctx, "Shared in-flight compilation", "path", src.Path)
	}
	return v.(string), nil
}

func (p *Pipeline) compile(ctx context.Context, src *Source) (string, error) {
	start := time.Now()

	js, err := p.backend.Compile(ctx, src)
	if err != nil {
		p.metrics.RecordCompile(CompileResult{Path: src.Path, Duration: time.Since(start), Error: err})
		return "", err
	}

	js = p.minifier.Minify(ctx, js)

	if err := p.store.Put(&Artifact{SourcePath: src.Path, SourceModTime: src.ModTime, Text: js}); err != nil {
		p.metrics.RecordCompile(CompileResult{Path: src.Path, Duration: time.Since(start), Error: err})
		return "", err
	}

	duration := time.Since(start)
	p.metrics.RecordCompile(CompileResult{Path: src.Path, Duration: duration})
	p.logger.Debug(ctx, "Compiled asset",
		"path", src.Path,
		"backend", p.backend.Name(),
		"duration", duration.String())
	return js, nil
}
