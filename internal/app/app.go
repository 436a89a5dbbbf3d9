// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app assembles the service: config, store, event bus, permission
// engine, session manager, and the HTTP API server, with one owner for
// startup order and shutdown order.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/groupsio/conduit/internal/api"
	"github.com/groupsio/conduit/internal/config"
	"github.com/groupsio/conduit/internal/events"
	"github.com/groupsio/conduit/internal/permission"
	"github.com/groupsio/conduit/internal/session"
	"github.com/groupsio/conduit/internal/store"
)

// App is the main application container.
type App struct {
	version string
	config  *config.Config

	store          *store.Store
	eventBus       events.EventBus
	engine         *permission.Engine
	sessionManager *session.Manager
	apiServer      *api.Server

	done     chan struct{}
	stopOnce sync.Once
}

// Options holds configuration options for the app.
type Options struct {
	ConfigPath string
	Host       string
	Port       int
	Version    string
}

// New creates a new App instance.
func New(opts Options) (*App, error) {
	app := &App{
		version: opts.Version,
		done:    make(chan struct{}),
	}

	// Load configuration
	loader := config.NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override host/port if specified
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app.config = cfg

	// Initialize event bus
	app.eventBus = events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents: cfg.Events.History.MaxEvents,
		HistoryMaxAge:    config.ParseDuration(cfg.Events.History.MaxAge, time.Hour),
	})

	return app, nil
}

// Initialize sets up all components.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config

	st, err := store.Open(store.Config{Path: cfg.Database.Path})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	app.store = st
	log.Printf("Using database: %s", cfg.Database.Path)

	app.engine = permission.NewEngine(st)

	app.sessionManager = session.NewManager(session.Config{
		CLIPath:          cfg.Agent.CLIPath,
		AccessToken:      cfg.Agent.AccessToken,
		WSPortRangeStart: cfg.Agent.WSPortRangeStart,
		WSPortRangeEnd:   cfg.Agent.WSPortRangeEnd,
		MaxSessions:      cfg.Agent.MaxSessions,
	}, st, app.eventBus, app.engine)

	// Sessions left live in the database by a previous run are dead in
	// reality; reconcile before accepting new work.
	app.sessionManager.CleanupOrphans()

	app.apiServer = api.NewServer(api.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, api.Dependencies{
		SessionManager:  app.sessionManager,
		Store:           st,
		EventBus:        app.eventBus,
		PermissionStore: st,
		Version:         app.version,
	})

	return nil
}

// Run initializes the app and serves until a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := app.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-serverErr:
		app.Stop()
		return err
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
	case <-ctx.Done():
	case <-app.done:
	}

	app.Stop()
	return nil
}

// Stop tears the application down: live sessions first, then the HTTP
// listener, then the bus and store.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)

		if app.sessionManager != nil {
			app.sessionManager.Shutdown()
		}
		if app.apiServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			app.apiServer.Shutdown(shutdownCtx)
			cancel()
		}
		if app.eventBus != nil {
			app.eventBus.Close()
		}
		if app.store != nil {
			app.store.Close()
		}
	})
}
