package watcher

import (
	"context"
	"path/filepath"

	"github.com/conneroisu/roaster/internal/build"
	"github.com/conneroisu/roaster/internal/errors"
	"github.com/conneroisu/roaster/internal/logging"
)

// NotifyFunc is told about every source the recompiler handled. err is the
// compile failure, nil when the source compiled or was removed.
type NotifyFunc func(ctx context.Context, path string, err error)

// Recompiler keeps the artifact store in step with source changes:
// modified sources are compiled eagerly, deleted ones lose their artifact.
type Recompiler struct {
	tree     *build.SourceTree
	pipeline *build.Pipeline
	notify   NotifyFunc
	logger   logging.Logger
}

// NewRecompiler creates a recompiler. notify may be nil.
func NewRecompiler(tree *build.SourceTree, pipeline *build.Pipeline, notify NotifyFunc, logger logging.Logger) *Recompiler {
	if notify == nil {
		notify = func(context.Context, string, error) {}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recompiler{
		tree:     tree,
		pipeline: pipeline,
		notify:   notify,
		logger:   logger.WithComponent("recompiler"),
	}
}

// Handle implements ChangeHandler. Individual compile failures are
// reported through notify and never abort the batch.
func (r *Recompiler) Handle(ctx context.Context, events []ChangeEvent) error {
	for _, event := range events {
		rel, err := r.relative(event.Path)
		if err != nil {
			r.logger.Warn(ctx, err, "Ignoring change outside the source tree", "path", event.Path)
			continue
		}

		if event.Type.Gone() {
			r.remove(ctx, rel)
			continue
		}

		src, err := r.tree.Load(rel)
		if err != nil {
			if errors.IsNotExist(err) {
				// Saved and removed again before the debounce fired
				r.remove(ctx, rel)
				continue
			}
			r.logger.Error(ctx, err, "Cannot read changed source", "path", rel)
			continue
		}

		_, err = r.pipeline.Compile(ctx, src)
		if err != nil {
			if _, ok := errors.AsCompileError(err); !ok {
				r.logger.Error(ctx, err, "Recompilation failed", "path", rel)
				continue
			}
			r.logger.Warn(ctx, err, "Changed source does not compile", "path", rel)
		} else {
			r.logger.Info(ctx, "Recompiled asset", "path", rel, "change", event.Type.String())
		}
		r.notify(ctx, rel, err)
	}
	return nil
}

func (r *Recompiler) remove(ctx context.Context, rel string) {
	if err := r.pipeline.Store().Remove(rel); err != nil {
		r.logger.Error(ctx, err, "Cannot remove artifact", "path", rel)
		return
	}
	r.logger.Info(ctx, "Removed artifact of deleted source", "path", rel)
	r.notify(ctx, rel, nil)
}

// relative maps an OS path reported by the watcher to a source path.
func (r *Recompiler) relative(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return build.Clean(path)
	}
	rel, err := filepath.Rel(r.tree.Root(), path)
	if err != nil {
		return "", err
	}
	return build.Clean(rel)
}
