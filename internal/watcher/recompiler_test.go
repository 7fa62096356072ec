package watcher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/roaster/internal/build"
	"github.com/conneroisu/roaster/internal/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notification struct {
	path string
	err  error
}

func newTestRecompiler(t *testing.T) (afero.Fs, *build.Pipeline, *Recompiler, *[]notification) {
	t.Helper()
	fs := afero.NewMemMapFs()
	root := filepath.FromSlash("/srv/site")
	tree := build.NewSourceTree(fs, root)
	pipeline := build.NewPipeline(build.NewEmbeddedBackend(), nil, build.NewArtifactStore(fs, false), nil)

	var got []notification
	r := NewRecompiler(tree, pipeline, func(_ context.Context, path string, err error) {
		got = append(got, notification{path: path, err: err})
	}, nil)
	return fs, pipeline, r, &got
}

func abs(rel string) string {
	return filepath.Join(filepath.FromSlash("/srv/site"), filepath.FromSlash(rel))
}

func TestRecompiler_CompilesChangedSource(t *testing.T) {
	fs, pipeline, r, got := newTestRecompiler(t)
	require.NoError(t, afero.WriteFile(fs, "public/javascripts/a.coffee", []byte("a = 1\n"), 0o644))

	err := r.Handle(context.Background(), []ChangeEvent{
		{Type: EventTypeModified, Path: abs("public/javascripts/a.coffee")},
	})
	require.NoError(t, err)

	a, err := pipeline.Store().Lookup("public/javascripts/a.coffee")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Contains(t, a.Text, "a = 1;")

	require.Len(t, *got, 1)
	assert.Equal(t, "public/javascripts/a.coffee", (*got)[0].path)
	assert.NoError(t, (*got)[0].err)
}

func TestRecompiler_ReportsCompileErrors(t *testing.T) {
	fs, pipeline, r, got := newTestRecompiler(t)
	require.NoError(t, afero.WriteFile(fs, "public/javascripts/bad.coffee", []byte("a = 1\nb = (\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "public/javascripts/good.coffee", []byte("c = 3\n"), 0o644))

	err := r.Handle(context.Background(), []ChangeEvent{
		{Type: EventTypeModified, Path: abs("public/javascripts/bad.coffee")},
		{Type: EventTypeCreated, Path: abs("public/javascripts/good.coffee")},
	})
	require.NoError(t, err, "one broken source does not fail the batch")

	require.Len(t, *got, 2)
	ce, ok := errors.AsCompileError((*got)[0].err)
	require.True(t, ok)
	assert.Equal(t, 2, ce.Line)
	assert.NoError(t, (*got)[1].err)

	good, err := pipeline.Store().Lookup("public/javascripts/good.coffee")
	require.NoError(t, err)
	assert.NotNil(t, good)
}

func TestRecompiler_RemovesArtifactOfDeletedSource(t *testing.T) {
	_, pipeline, r, got := newTestRecompiler(t)
	require.NoError(t, pipeline.Store().Put(&build.Artifact{
		SourcePath:    "public/javascripts/gone.coffee",
		SourceModTime: time.Now(),
		Text:          "var gone;",
	}))

	for _, typ := range []EventType{EventTypeDeleted, EventTypeModified} {
		err := r.Handle(context.Background(), []ChangeEvent{
			{Type: typ, Path: abs("public/javascripts/gone.coffee")},
		})
		require.NoError(t, err)

		a, err := pipeline.Store().Lookup("public/javascripts/gone.coffee")
		require.NoError(t, err)
		assert.Nil(t, a, typ.String())
	}
	assert.Len(t, *got, 2)
}

func TestRecompiler_IgnoresPathsOutsideTree(t *testing.T) {
	_, _, r, got := newTestRecompiler(t)

	err := r.Handle(context.Background(), []ChangeEvent{
		{Type: EventTypeModified, Path: filepath.FromSlash("/etc/other.coffee")},
	})
	require.NoError(t, err)
	assert.Empty(t, *got)
}
