package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"logalert/internal/api"
	"logalert/internal/config"
	"logalert/internal/logging"
	"logalert/internal/store"

	"github.com/fsnotify/fsnotify"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable configuration service.
type Service struct {
	source    config.ConfigSource
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	store     store.Store
	manager   *Manager
	httpSrv   *http.Server
	readyFlag atomic.Bool
}

// NewService builds service instance from config source.
// Params: config source.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger = logger.With("service", cfg.Service.Name)

	service := &Service{
		source:   source,
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
	}

	service.store, err = buildStore(cfg)
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.manager, err = NewManager(cfg, logger, service.store)
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.buildHTTPServer()
	return service, nil
}

// Manager returns the composed manager.
func (s *Service) Manager() *Manager {
	return s.manager
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: init, listener or shutdown error.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	initCtx, initCancel := context.WithTimeout(runCtx, time.Duration(s.cfg.Service.InitTimeoutSec)*time.Second)
	err := s.manager.Init(initCtx)
	initCancel()
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("init: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.preload(runCtx)

	if s.cfg.Service.ReloadEnabled {
		watcher, err := s.watchConfig(runCtx)
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("config watcher: %w", err)
		}
		defer watcher.Close()
	}

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// preload fetches global defaults and catalogs once within the catalog timeout.
func (s *Service) preload(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, time.Duration(s.manager.Config().Catalog.LoadTimeoutSec)*time.Second)
	defer cancel()
	if err := s.manager.Preload(loadCtx); err == nil {
		s.logger.Info("catalogs and global defaults loaded")
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.HTTP.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
		markErr(fmt.Errorf("store close: %w", err))
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
func (s *Service) cleanupInitResources() {
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires router with API and health endpoints.
func (s *Service) buildHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	mux.Handle(s.cfg.HTTP.APIPrefix+"/", api.NewHandler(s.manager, api.Options{
		Prefix:            s.cfg.HTTP.APIPrefix,
		PermissionsHeader: s.cfg.HTTP.PermissionsHeader,
		MaxBodyBytes:      s.cfg.HTTP.MaxBodyBytes,
		Logger:            s.logger,
	}))

	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// watchConfig reloads config after file changes settle for the debounce window.
// Params: runtime context stopping the watch loop.
// Returns: started watcher; caller closes it.
func (s *Service) watchConfig(ctx context.Context) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	watchDir := s.source.Dir
	if watchDir == "" {
		// Parent dir: editors replace the file via rename.
		watchDir = filepath.Dir(s.source.File)
	}
	if err := watcher.Add(watchDir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", watchDir, err)
	}

	debounce := time.Duration(s.cfg.Service.ReloadDebounceMS) * time.Millisecond
	go func() {
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !s.relevantChange(event) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("config watcher error", "error", err.Error())
			case <-fire:
				fire = nil
				if err := s.reloadConfig(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Error("reload failed", "error", err.Error())
				}
			}
		}
	}()
	return watcher, nil
}

func (s *Service) relevantChange(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	if s.source.File != "" {
		return filepath.Clean(event.Name) == filepath.Clean(s.source.File)
	}
	return strings.HasSuffix(event.Name, ".toml")
}

// reloadConfig loads and applies the next config snapshot.
// Params: context for seeding and catalog reload.
// Returns: load or apply error; the running snapshot stays on failure.
func (s *Service) reloadConfig(ctx context.Context) error {
	next, err := config.LoadSnapshot(s.source)
	if err != nil {
		return err
	}
	if err := s.manager.ApplyConfig(ctx, next); err != nil {
		return err
	}
	s.logger.Info("configuration reloaded")
	loadCtx, cancel := context.WithTimeout(ctx, time.Duration(next.Catalog.LoadTimeoutSec)*time.Second)
	defer cancel()
	if err := s.manager.Catalogs().LoadAll(loadCtx); err != nil {
		s.logger.Warn("catalog reload failed", "error", err.Error())
	}
	return nil
}

// buildStore creates configuration store backend from config.
// Params: root config snapshot.
// Returns: selected store backend.
func buildStore(cfg config.Config) (store.Store, error) {
	switch config.NormalizeStoreMode(cfg.Service.Mode) {
	case config.StoreModeSQLite:
		return store.NewSQLiteStore(cfg.Store.SQLite, time.Now)
	case config.StoreModeNATS:
		return store.NewNATSStore(cfg.Store.NATS)
	default:
		return store.NewMemoryStore(time.Now), nil
	}
}

// OpenManager builds store and manager for one-shot CLI commands.
// Params: context bounding init, config snapshot and logger.
// Returns: initialized manager, store close callback, or setup error.
func OpenManager(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Manager, func() error, error) {
	st, err := buildStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	manager, err := NewManager(cfg, logger, st)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	if err := manager.Init(ctx); err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("init: %w", err)
	}
	return manager, st.Close, nil
}
