// Package server exposes compiled CoffeeScript assets over HTTP: the asset
// interceptor, the diagnostic error pages, development live reload and the
// operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/conneroisu/roaster/internal/build"
	"github.com/conneroisu/roaster/internal/config"
	"github.com/conneroisu/roaster/internal/logging"
	"github.com/conneroisu/roaster/internal/version"
	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/afero"
)

// Operational routes.
const (
	HealthPath           = "/_roaster/health"
	StatusPath           = "/_roaster/status"
	LiveReloadPath       = "/_roaster/livereload"
	LiveReloadScriptPath = "/_roaster/livereload.js"
)

// Server serves compiled assets with the static files they live beside.
type Server struct {
	config       *config.Config
	tree         *build.SourceTree
	pipeline     *build.Pipeline
	hub          *ReloadHub
	logger       logging.Logger
	httpServer   *http.Server
	listener     net.Listener
	serverMutex  sync.RWMutex
	startedAt    time.Time
	shutdownOnce sync.Once
}

// New creates a server. hub may be nil, which disables live reload.
func New(cfg *config.Config, tree *build.SourceTree, pipeline *build.Pipeline, hub *ReloadHub, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		config:    cfg,
		tree:      tree,
		pipeline:  pipeline,
		hub:       hub,
		logger:    logger.WithComponent("server"),
		startedAt: time.Now(),
	}
}

// Handler returns the complete HTTP handler: routes plus middleware.
func (s *Server) Handler() http.Handler {
	static := http.FileServer(afero.NewHttpFs(s.tree.Fs()))

	var cacheFor time.Duration
	if s.config.IsProduction() {
		cacheFor = s.config.Server.CacheFor
	}
	interceptor := NewAssetInterceptor(s.tree, s.pipeline, InterceptorOptions{
		CacheFor: cacheFor,
		Fallback: static,
	}, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc(HealthPath, s.handleHealth)
	mux.HandleFunc(StatusPath, s.handleStatus)
	if s.hub != nil {
		mux.Handle(LiveReloadPath, s.hub)
		mux.HandleFunc(LiveReloadScriptPath, handleLiveReloadScript)
	}
	mux.Handle(s.config.Assets.URLPrefix, interceptor)

	return s.addMiddleware(mux)
}

func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	if s.config.IsProduction() {
		handler = gzhttp.GzipHandler(handler)
	}
	handler = SecurityMiddleware(SecurityConfigFromAppConfig(s.config))(handler)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String())
	})
}

// Start binds the listener and serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until Shutdown is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.serverMutex.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Serving assets",
		"address", ln.Addr().String(),
		"mode", s.config.Mode,
		"backend", s.pipeline.Backend().Name(),
		"live_reload", s.hub != nil)

	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully stops the HTTP server. It is safe to call more than
// once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			s.logger.Info(ctx, "Shutting down server")
			shutdownErr = server.Shutdown(ctx)
		}
	})
	return shutdownErr
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
	}
	s.writeJSON(w, r, health)
}

// handleStatus reports pipeline metrics and the compiled artifact store
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store := s.pipeline.Store()
	artifacts := 0
	err := store.Walk(func(string, os.FileInfo) error {
		artifacts++
		return nil
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "Cannot count compiled artifacts")
	}

	status := map[string]interface{}{
		"mode":        s.config.Mode,
		"backend":     s.pipeline.Backend().Name(),
		"store":       store.Root(),
		"artifacts":   artifacts,
		"uptime":      time.Since(s.startedAt).Round(time.Second).String(),
		"metrics":     s.pipeline.Metrics(),
		"build":       version.GetBuildInfo(),
		"live_reload": s.hub != nil,
	}
	if s.hub != nil {
		status["reload_clients"] = s.hub.ClientCount()
	}

	manifest, err := store.ReadManifest()
	if err != nil {
		s.logger.Warn(r.Context(), err, "Cannot read precompile manifest")
	}
	if manifest != nil {
		status["precompiled_at"] = manifest.GeneratedAt
		status["precompiled_assets"] = len(manifest.Assets)
	}

	s.writeJSON(w, r, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode response", "path", r.URL.Path)
	}
}
