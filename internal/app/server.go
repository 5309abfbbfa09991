package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	httpAdapter "dreamproxy/internal/adapter/http"
	"dreamproxy/internal/app/factory"
	"dreamproxy/internal/backend"
	"dreamproxy/internal/config"
	"dreamproxy/internal/telemetry"

	"golang.org/x/sync/errgroup"
)

// Server represents the proxy server
type Server struct {
	config    *config.Config
	loader    *config.Loader
	http      *httpAdapter.Server
	adapter   *httpAdapter.Adapter
	handler   http.Handler
	upstream  *backend.Upstream
	stores    *factory.QuotaStores
	telemetry *telemetry.Telemetry
	watcher   *config.Watcher
	logger    *slog.Logger
}

// NewServer creates a new proxy server
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	return NewBuilder(cfg, logger).Build()
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the bound listen address once started
func (s *Server) Addr() string {
	return s.http.Addr()
}

// Start binds the listener and starts the config watcher. It returns once
// the server is accepting connections; serving continues in the background
// until Stop.
func (s *Server) Start(ctx context.Context) error {
	if err := s.http.Start(ctx); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}

	if err := s.startWatcher(); err != nil {
		// reload is optional, the proxy keeps serving its startup config
		s.logger.Warn("Config watcher not started", "error", err)
	}

	s.logger.Info("Proxy started successfully",
		"service", s.config.Proxy.Service,
		"addr", s.http.Addr(),
	)
	return nil
}

func (s *Server) startWatcher() error {
	w := s.config.Proxy.Watch
	if !w.Enabled || s.loader == nil {
		return nil
	}

	files := []string{s.loader.Path(), s.config.Proxy.Upstream.APIKeyFile}
	if files[0] == "" && files[1] == "" {
		return nil
	}

	watcherCfg := config.DefaultWatcherConfig()
	if w.Debounce > 0 {
		watcherCfg.DebounceDuration = w.Debounce
	}
	watcherCfg.OnChange = func(newCfg *config.Config) error {
		s.applyConfig(newCfg)
		return nil
	}
	watcherCfg.OnError = func(err error) {
		s.logger.Error("Config reload failed, keeping current settings", "error", err)
	}

	watcher, err := config.NewWatcher(s.loader, files, watcherCfg, s.logger)
	if err != nil {
		return err
	}
	watcher.Start()
	s.watcher = watcher
	return nil
}

// applyConfig applies the runtime-swappable parts of a reloaded config.
// Only the upstream credential and model change without a restart.
func (s *Server) applyConfig(newCfg *config.Config) {
	current := s.upstream.Settings()
	next := factory.SettingsFrom(newCfg.Proxy.Upstream)

	if next != current {
		s.upstream.Update(next)
		s.logger.Info("Upstream settings reloaded",
			"model", next.Model,
			"credential", next.APIKey != "",
		)
	}

	oldRL, newRL := s.config.Proxy.RateLimit, newCfg.Proxy.RateLimit
	if oldRL.Window != newRL.Window || oldRL.MaxRequests != newRL.MaxRequests || oldRL.Storage != newRL.Storage {
		s.logger.Warn("Rate limit changes require a restart, ignoring",
			"window", newRL.Window,
			"maxRequests", newRL.MaxRequests,
			"storage", newRL.Storage,
		)
	}
}

// Stop drains in-flight requests, then releases the quota store and flushes
// telemetry
func (s *Server) Stop(ctx context.Context) error {
	var front errgroup.Group
	front.Go(func() error {
		if err := s.http.Stop(ctx); err != nil {
			return fmt.Errorf("stopping HTTP server: %w", err)
		}
		return nil
	})
	if s.watcher != nil {
		front.Go(func() error {
			if err := s.watcher.Stop(); err != nil {
				return fmt.Errorf("stopping config watcher: %w", err)
			}
			return nil
		})
	}
	frontErr := front.Wait()

	var back errgroup.Group
	back.Go(func() error {
		if err := s.stores.Close(); err != nil {
			return fmt.Errorf("closing quota store: %w", err)
		}
		return nil
	})
	back.Go(func() error {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down telemetry: %w", err)
		}
		return nil
	})
	backErr := back.Wait()

	if frontErr != nil {
		return frontErr
	}
	if backErr != nil {
		return backErr
	}

	s.logger.Info("Proxy stopped successfully", "requests", s.adapter.Requests())
	return nil
}
