// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/groupsio/conduit/internal/events"
	"github.com/groupsio/conduit/internal/session"
)

// HealthHandler reports process liveness and basic load figures.
type HealthHandler struct {
	manager *session.Manager
	bus     events.EventBus
	version string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(manager *session.Manager, bus events.EventBus, version string) *HealthHandler {
	return &HealthHandler{manager: manager, bus: bus, version: version}
}

// Health returns the service health snapshot.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"version":           h.version,
		"active_sessions":   h.manager.ActiveCount(),
		"agent_processes":   h.manager.LiveProcessCount(),
		"event_subscribers": h.bus.SubscriberCount(),
	})
}
