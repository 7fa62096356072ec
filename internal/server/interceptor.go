package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/roaster/internal/build"
	"github.com/conneroisu/roaster/internal/errors"
	"github.com/conneroisu/roaster/internal/logging"
)

// JavaScriptContentType is sent with every compiled asset.
const JavaScriptContentType = "text/javascript; charset=utf-8"

// AssetInterceptor answers every request for a .coffee source with
// compiled JavaScript, so sources are never served raw. Every other
// request goes to the fallback handler.
type AssetInterceptor struct {
	tree     *build.SourceTree
	pipeline *build.Pipeline
	fallback http.Handler
	// cacheFor is sent as max-age when positive; zero disables caching headers
	cacheFor   time.Duration
	errHandler *errors.ErrorHandler
	logger     logging.Logger
}

// InterceptorOptions configures an AssetInterceptor.
type InterceptorOptions struct {
	// CacheFor is the Cache-Control max-age for served assets. Zero sends no
	// header, which is what development mode uses.
	CacheFor time.Duration
	Fallback http.Handler
}

// NewAssetInterceptor creates an interceptor. A nil fallback answers 404.
func NewAssetInterceptor(tree *build.SourceTree, pipeline *build.Pipeline, opts InterceptorOptions, logger logging.Logger) *AssetInterceptor {
	if opts.Fallback == nil {
		opts.Fallback = http.NotFoundHandler()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("interceptor")
	return &AssetInterceptor{
		tree:       tree,
		pipeline:   pipeline,
		fallback:   opts.Fallback,
		cacheFor:   opts.CacheFor,
		errHandler: errors.NewErrorHandler(logger),
		logger:     logger,
	}
}

// ServeHTTP implements http.Handler.
func (ai *AssetInterceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		ai.fallback.ServeHTTP(w, r)
		return
	}

	ctx := r.Context()
	rel, ok, err := ai.match(r.URL.Path)
	if !ok {
		ai.fallback.ServeHTTP(w, r)
		return
	}
	if err != nil {
		ai.errHandler.Handle(ctx, err)
		http.NotFound(w, r)
		return
	}

	src, err := ai.tree.Load(rel)
	if err != nil {
		if errors.IsNotExist(err) {
			ai.fallback.ServeHTTP(w, r)
			return
		}
		ai.errHandler.Handle(ctx, err)
		ai.renderGeneric(w, r)
		return
	}

	js, err := ai.pipeline.Compile(ctx, src)
	if err != nil {
		ai.errHandler.Handle(ctx, err)
		if ce, ok := errors.AsCompileError(err); ok {
			if rerr := renderPage(ctx, w, http.StatusInternalServerError, ErrorPage(NewDiagnostic(ce, src.Content))); rerr != nil {
				ai.logger.Error(ctx, rerr, "Cannot render error page", "path", rel)
			}
			return
		}
		ai.renderGeneric(w, r)
		return
	}

	h := w.Header()
	h.Set("Content-Type", JavaScriptContentType)
	h.Set("Content-Length", strconv.Itoa(len(js)))
	if ai.cacheFor > 0 {
		h.Set("Cache-Control", "max-age="+strconv.Itoa(int(ai.cacheFor.Seconds())))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write([]byte(js)); err != nil {
		ai.logger.Debug(ctx, "Client went away before the asset was written", "path", rel)
	}
}

// match maps a request path to a root-relative source path. ok is false
// when the path does not name a .coffee source; err is set when it does
// but cannot be resolved safely inside the tree.
func (ai *AssetInterceptor) match(urlPath string) (rel string, ok bool, err error) {
	if !strings.HasSuffix(urlPath, build.SourceExt) {
		return "", false, nil
	}
	rel, err = build.Clean(urlPath)
	if err != nil {
		return "", true, err
	}
	return rel, true, nil
}

func (ai *AssetInterceptor) renderGeneric(w http.ResponseWriter, r *http.Request) {
	if err := renderPage(r.Context(), w, http.StatusInternalServerError, GenericErrorPage(http.StatusInternalServerError)); err != nil {
		ai.logger.Error(r.Context(), err, "Cannot render error page")
	}
}
