package build

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/roaster/internal/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "app/foo.coffee", want: "app/foo.coffee"},
		{name: "leading slash", input: "/app/foo.coffee", want: "app/foo.coffee"},
		{name: "redundant segments", input: "app/./nested//foo.coffee", want: "app/nested/foo.coffee"},
		{name: "traversal", input: "../secret.coffee", wantErr: true},
		{name: "nested traversal", input: "app/../../secret.coffee", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clean(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSourceTree_Load(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, afero.WriteFile(fs, "app/foo.coffee", []byte("x = 1\n"), 0o644))
	require.NoError(t, fs.Chtimes("app/foo.coffee", mtime, mtime))

	tree := NewSourceTree(fs, "/srv/site")
	src, err := tree.Load("app/foo.coffee")
	require.NoError(t, err)

	assert.Equal(t, "app/foo.coffee", src.Path)
	assert.Equal(t, filepath.Join("/srv/site", "app", "foo.coffee"), src.AbsPath)
	assert.Equal(t, "x = 1\n", src.Content)
	assert.True(t, src.ModTime.Equal(mtime))
}

func TestSourceTree_LoadMissing(t *testing.T) {
	tree := NewSourceTree(afero.NewMemMapFs(), "/srv/site")

	_, err := tree.Load("app/missing.coffee")
	require.Error(t, err)
	assert.True(t, errors.IsNotExist(err))
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
}

func TestSourceTree_LoadRejects(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("app/dir.coffee", 0o755))
	tree := NewSourceTree(fs, "/srv/site")

	_, err := tree.Load("../etc/passwd.coffee")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSecurity))
	assert.False(t, errors.IsNotExist(err))

	_, err = tree.Load("app/dir.coffee")
	require.Error(t, err)
	assert.False(t, errors.IsNotExist(err))
}

func TestSourceTree_Walk(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"assets/a.coffee", "assets/b.js", "assets/nested/c.coffee", "other/d.coffee"} {
		require.NoError(t, afero.WriteFile(fs, name, []byte("x = 1"), 0o644))
	}
	tree := NewSourceTree(fs, "/srv/site")

	var seen []string
	require.NoError(t, tree.Walk("assets", func(rel string) error {
		seen = append(seen, rel)
		return nil
	}))
	assert.Equal(t, []string{"assets/a.coffee", "assets/nested/c.coffee"}, seen)

	err := tree.Walk("missing", func(string) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.IsNotExist(err))
}
