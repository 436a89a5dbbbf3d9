// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api wires the HTTP surface: session lifecycle, permission rule
// CRUD, event history, and the streaming endpoints (consumer WebSocket,
// event WebSocket, SSE).
package api

import (
	"context"
	"log"
	"net/http"
	_ "net/http/pprof"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/groupsio/conduit/internal/api/handlers"
	"github.com/groupsio/conduit/internal/api/middleware"
	"github.com/groupsio/conduit/internal/api/version"
	"github.com/groupsio/conduit/internal/events"
	"github.com/groupsio/conduit/internal/permission"
	"github.com/groupsio/conduit/internal/session"
	"github.com/groupsio/conduit/internal/store"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host string
	Port int
}

// Dependencies holds all dependencies for API handlers.
type Dependencies struct {
	SessionManager  *session.Manager
	Store           *store.Store
	EventBus        events.EventBus
	PermissionStore permission.Store
	Version         string
}

// NewRouter creates a new API router.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)
	r.Use(version.Middleware)

	// API v1 routes
	api := r.PathPrefix("/api/v1").Subrouter()

	// Health
	healthHandler := handlers.NewHealthHandler(deps.SessionManager, deps.EventBus, deps.Version)
	api.HandleFunc("/health", healthHandler.Health).Methods("GET")

	// Project handlers
	projectHandler := handlers.NewProjectHandler(deps.Store)
	api.HandleFunc("/projects", projectHandler.List).Methods("GET")
	api.HandleFunc("/projects", projectHandler.Create).Methods("POST")
	api.HandleFunc("/projects/{project}", projectHandler.Get).Methods("GET")

	// Session handlers
	sessionHandler := handlers.NewSessionHandler(deps.SessionManager, deps.Store, deps.EventBus)
	api.HandleFunc("/sessions", sessionHandler.List).Methods("GET")
	api.HandleFunc("/sessions", sessionHandler.Create).Methods("POST")
	api.HandleFunc("/sessions/{session}", sessionHandler.Get).Methods("GET")
	api.HandleFunc("/sessions/{session}", sessionHandler.Kill).Methods("DELETE")
	api.HandleFunc("/sessions/{session}/messages", sessionHandler.Messages).Methods("GET")
	api.HandleFunc("/sessions/{session}/messages", sessionHandler.SendMessage).Methods("POST")
	api.HandleFunc("/sessions/{session}/interrupt", sessionHandler.Interrupt).Methods("POST")
	api.HandleFunc("/sessions/{session}/ws", sessionHandler.WebSocket).Methods("GET")

	// Permission rule handlers
	permissionHandler := handlers.NewPermissionHandler(deps.PermissionStore)
	api.HandleFunc("/permissions/rules", permissionHandler.ListGlobal).Methods("GET")
	api.HandleFunc("/permissions/rules", permissionHandler.Create).Methods("POST")
	api.HandleFunc("/permissions/rules/{id}", permissionHandler.Update).Methods("PATCH")
	api.HandleFunc("/permissions/rules/{id}", permissionHandler.Delete).Methods("DELETE")
	api.HandleFunc("/projects/{project}/permissions/rules", permissionHandler.ListByProject).Methods("GET")
	api.HandleFunc("/sessions/{session}/permissions/log", permissionHandler.Log).Methods("GET")

	// Event handlers
	eventHandler := handlers.NewEventHandler(deps.EventBus)
	api.HandleFunc("/events", eventHandler.History).Methods("GET")
	api.HandleFunc("/events/ws", eventHandler.WebSocket).Methods("GET")
	api.HandleFunc("/events/sse", eventHandler.SSE).Methods("GET")

	// Debug/profiling endpoints
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return r
}

// Server represents the API server.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	return &Server{
		router: NewRouter(deps),
		cfg:    cfg,
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	log.Printf("API server listening on http://%s", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Println("Shutting down API server...")

	// Create a timeout context if none provided
	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return s.server.Shutdown(shutdownCtx)
}
