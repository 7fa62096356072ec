package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/conneroisu/roaster/internal/build"
	"github.com/conneroisu/roaster/internal/coffee"
	"github.com/conneroisu/roaster/internal/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSite struct {
	fs       afero.Fs
	tree     *build.SourceTree
	pipeline *build.Pipeline
	server   *Server
}

func testConfig(mode string) *config.Config {
	cfg := &config.Config{Mode: mode}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.CacheFor = time.Hour
	cfg.Assets.Root = "/srv/site"
	cfg.Assets.Dir = "public/javascripts"
	cfg.Assets.URLPrefix = "/public/"
	return cfg
}

func newTestSite(t *testing.T, cfg *config.Config, minifier build.Minifier, files map[string]string) *testSite {
	t.Helper()
	fs := afero.NewBasePathFs(afero.NewMemMapFs(), "/")
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	tree := build.NewSourceTree(fs, cfg.Assets.Root)
	store := build.NewArtifactStore(fs, cfg.UsesPrecompiledDir())
	pipeline := build.NewPipeline(build.NewEmbeddedBackend(), minifier, store, nil)
	return &testSite{
		fs:       fs,
		tree:     tree,
		pipeline: pipeline,
		server:   New(cfg, tree, pipeline, nil, nil),
	}
}

func (ts *testSite) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestInterceptor_ServesCompiledJavaScript(t *testing.T) {
	const source = "square = (x) -> x * x\n"
	site := newTestSite(t, testConfig(config.ModeDev), nil, map[string]string{
		"public/javascripts/foo.coffee": source,
	})

	rec := site.get(t, "/public/javascripts/foo.coffee")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, JavaScriptContentType, rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Cache-Control"), "development responses are not cacheable")
	assert.Contains(t, rec.Body.String(), "square = function(x) {")
	assert.Contains(t, rec.Body.String(), "return x * x;")

	want, err := coffee.Compile(source)
	require.NoError(t, err)
	assert.Equal(t, want, rec.Body.String())
	assert.Equal(t, strconv.Itoa(len(want)), rec.Header().Get("Content-Length"))
}

func TestInterceptor_CompileErrorPage(t *testing.T) {
	site := newTestSite(t, testConfig(config.ModeDev), nil, map[string]string{
		"public/javascripts/bad.coffee": "a = 1\nb = 2\nc = (1 + \n",
	})

	rec := site.get(t, "/public/javascripts/bad.coffee")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "public/javascripts/bad.coffee")
	assert.Contains(t, body, `line <span class="line">3</span>`)

	a, err := site.pipeline.Store().Lookup("public/javascripts/bad.coffee")
	require.NoError(t, err)
	assert.Nil(t, a, "failed compilations are never stored")
}

func TestInterceptor_ProductionMinifiesAndCaches(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script test doubles require a POSIX shell")
	}
	exe := filepath.Join(t.TempDir(), "uglifyjs")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\ntr a-z A-Z\n"), 0o755))

	const source = "square = (x) -> x * x\n"
	cfg := testConfig(config.ModeProd)
	cfg.UglifyJS.Path = exe
	cfg.UglifyJS.Timeout = 5 * time.Second
	site := newTestSite(t, cfg, build.NewMinifier(cfg, nil), map[string]string{
		"public/javascripts/foo.coffee": source,
	})

	rec := site.get(t, "/public/javascripts/foo.coffee")

	require.Equal(t, http.StatusOK, rec.Code)
	want, err := coffee.Compile(source)
	require.NoError(t, err)
	assert.Equal(t, strings.ToUpper(want), rec.Body.String())
	assert.Equal(t, "max-age=3600", rec.Header().Get("Cache-Control"))
}

func TestInterceptor_SecondRequestIsCacheHit(t *testing.T) {
	site := newTestSite(t, testConfig(config.ModeDev), nil, map[string]string{
		"public/javascripts/foo.coffee": "a = 1\n",
	})

	first := site.get(t, "/public/javascripts/foo.coffee")
	second := site.get(t, "/public/javascripts/foo.coffee")

	assert.Equal(t, first.Body.String(), second.Body.String())
	snapshot := site.pipeline.Metrics()
	assert.Equal(t, int64(1), snapshot.Compilations)
	assert.Equal(t, int64(1), snapshot.CacheHits)
}

func TestInterceptor_FallsThrough(t *testing.T) {
	site := newTestSite(t, testConfig(config.ModeDev), nil, map[string]string{
		"public/javascripts/plain.js": "var plain;",
		"public/javascripts/a.coffee": "a = 1",
	})

	t.Run("non coffee file is served statically", func(t *testing.T) {
		rec := site.get(t, "/public/javascripts/plain.js")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "var plain;", rec.Body.String())
	})

	t.Run("missing source is not found", func(t *testing.T) {
		rec := site.get(t, "/public/javascripts/missing.coffee")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("paths outside the url prefix are not routed", func(t *testing.T) {
		rec := site.get(t, "/javascripts/a.coffee")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestInterceptor_CompilesCoffeeOutsideAssetDir(t *testing.T) {
	const source = "square = (x) -> x * x\n"
	site := newTestSite(t, testConfig(config.ModeDev), nil, map[string]string{
		"public/stylesheets/foo.coffee": source,
	})

	rec := site.get(t, "/public/stylesheets/foo.coffee")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, JavaScriptContentType, rec.Header().Get("Content-Type"))
	assert.NotContains(t, rec.Body.String(), "->", "the raw source is never served")

	want, err := coffee.Compile(source)
	require.NoError(t, err)
	assert.Equal(t, want, rec.Body.String())
}

func TestAssetInterceptor_Match(t *testing.T) {
	ai := NewAssetInterceptor(nil, nil, InterceptorOptions{}, nil)

	tests := []struct {
		path    string
		want    string
		ok      bool
		wantErr bool
	}{
		{path: "/public/javascripts/a.coffee", want: "public/javascripts/a.coffee", ok: true},
		{path: "/public/javascripts/nested/b.coffee", want: "public/javascripts/nested/b.coffee", ok: true},
		{path: "/public/stylesheets/c.coffee", want: "public/stylesheets/c.coffee", ok: true},
		{path: "/public/javascripts/a.js"},
		{path: "/public/javascripts/../../etc/passwd.coffee", ok: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok, err := ai.match(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestAssetInterceptor_TraversalIsNotFound(t *testing.T) {
	called := false
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	ai := NewAssetInterceptor(nil, nil, InterceptorOptions{Fallback: fallback}, nil)

	req := httptest.NewRequest(http.MethodGet, "/public/a.coffee", nil)
	req.URL.Path = "/public/../../etc/passwd.coffee"
	rec := httptest.NewRecorder()
	ai.ServeHTTP(rec, req)

	assert.False(t, called, "unsafe source paths never reach the static server")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssetInterceptor_NonGetFallsThrough(t *testing.T) {
	called := false
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	ai := NewAssetInterceptor(nil, nil, InterceptorOptions{Fallback: fallback}, nil)

	rec := httptest.NewRecorder()
	ai.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/public/javascripts/a.coffee", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
