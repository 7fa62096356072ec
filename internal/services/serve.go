package services

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/conneroisu/roaster/internal/build"
	"github.com/conneroisu/roaster/internal/errors"
	"github.com/conneroisu/roaster/internal/server"
	"github.com/conneroisu/roaster/internal/watcher"
)

const (
	defaultDebounce = 100 * time.Millisecond
	shutdownTimeout = 10 * time.Second
)

// ServeService handles the asset server business logic
type ServeService struct {
	runtime *Runtime
}

// NewServeService creates a new serve service
func NewServeService(rt *Runtime) *ServeService {
	return &ServeService{runtime: rt}
}

// ServeOptions contains options for the serve process
type ServeOptions struct {
	// Listener overrides the configured address when set.
	Listener net.Listener
	// Debounce is the watcher coalescing delay.
	Debounce time.Duration
	// HandleSignals stops the server on SIGINT and SIGTERM.
	HandleSignals bool
}

// ServeResult contains the result of a serve operation
type ServeResult struct {
	ServerURL  string
	Precompile *build.PrecompileReport
	LiveReload bool
	Watching   bool
}

// Serve runs the startup sequence, then serves assets until ctx is
// cancelled (or a signal arrives when HandleSignals is set).
func (s *ServeService) Serve(ctx context.Context, opts ServeOptions) (*ServeResult, error) {
	rt := s.runtime
	cfg := rt.Config
	result := &ServeResult{}

	if opts.HandleSignals {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	report, err := rt.Prepare(serverCtx)
	if err != nil {
		return result, errors.ServeServiceError("PREPARE", "startup sequence failed", err)
	}
	result.Precompile = report

	var hub *server.ReloadHub
	if !cfg.IsProduction() && cfg.Development.LiveReload {
		hub = server.NewReloadHub(rt.Logger)
		go hub.Run(serverCtx)
		result.LiveReload = true
	}

	if !cfg.IsProduction() {
		fw, err := s.startWatcher(serverCtx, hub, opts.Debounce)
		if err != nil {
			rt.Logger.Warn(serverCtx, err, "File watcher disabled")
		} else {
			defer fw.Stop()
			result.Watching = true
		}
	}

	srv := server.New(cfg, rt.Tree, rt.Pipeline, hub, rt.Logger)

	go func() {
		<-serverCtx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			rt.Logger.Error(shutdownCtx, err, "Error during server shutdown")
		}
	}()

	if opts.Listener != nil {
		result.ServerURL = "http://" + opts.Listener.Addr().String()
		err = srv.Serve(serverCtx, opts.Listener)
	} else {
		result.ServerURL = fmt.Sprintf("http://%s", cfg.Address())
		err = srv.Start(serverCtx)
	}
	if err != nil {
		if strings.Contains(err.Error(), "address already in use") ||
			strings.Contains(err.Error(), "permission denied") {
			return result, errors.NewEnhancedError(
				fmt.Sprintf("Failed to start server on port %d", cfg.Server.Port),
				err,
				errors.ServerStartError(err, cfg.Server.Port),
			)
		}
		return result, errors.ServeServiceError("START_SERVER", "server startup failed", err)
	}

	return result, nil
}

// startWatcher watches assets.dir and recompiles changed sources, pushing
// the outcome to connected browsers when hub is set.
func (s *ServeService) startWatcher(ctx context.Context, hub *server.ReloadHub, delay time.Duration) (*watcher.FileWatcher, error) {
	rt := s.runtime
	if delay <= 0 {
		delay = defaultDebounce
	}

	fw, err := watcher.NewFileWatcher(rt.Tree.Root(), delay, rt.Logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.CoffeeFilter)
	fw.AddFilter(watcher.NoHiddenFilter)

	var notify watcher.NotifyFunc
	if hub != nil {
		notify = func(_ context.Context, path string, err error) {
			hub.Broadcast(reloadMessage(path, err))
		}
	}
	fw.AddHandler(watcher.NewRecompiler(rt.Tree, rt.Pipeline, notify, rt.Logger).Handle)

	if err := fw.AddRecursive(filepath.FromSlash(rt.Config.Assets.Dir)); err != nil {
		fw.Stop()
		return nil, err
	}
	if err := fw.Start(ctx); err != nil {
		fw.Stop()
		return nil, err
	}
	return fw, nil
}

func reloadMessage(path string, err error) server.ReloadMessage {
	msg := server.ReloadMessage{
		Type:      server.MessageReload,
		Path:      path,
		Timestamp: time.Now(),
	}
	if ce, ok := errors.AsCompileError(err); ok {
		msg.Type = server.MessageCompileError
		msg.Message = ce.Message
		msg.Line = ce.Line
	}
	return msg
}
