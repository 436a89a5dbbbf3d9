// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/groupsio/conduit/internal/permission"
)

// PermissionHandler handles permission rule CRUD and audit log reads.
type PermissionHandler struct {
	store permission.Store
}

// NewPermissionHandler creates a new permission handler.
func NewPermissionHandler(store permission.Store) *PermissionHandler {
	return &PermissionHandler{store: store}
}

// ruleInfo is the wire shape of a permission rule.
type ruleInfo struct {
	ID          int64     `json:"id"`
	ProjectID   *string   `json:"project_id,omitempty"`
	ToolName    string    `json:"tool_name"`
	RuleContent string    `json:"rule_content"`
	Behavior    string    `json:"behavior"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}

func toRuleInfo(r permission.Rule) ruleInfo {
	return ruleInfo{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		ToolName:    r.ToolName,
		RuleContent: r.RuleContent,
		Behavior:    string(r.Behavior),
		Priority:    r.Priority,
		CreatedAt:   r.CreatedAt,
	}
}

func toRuleInfos(rules []permission.Rule) []ruleInfo {
	out := make([]ruleInfo, 0, len(rules))
	for _, r := range rules {
		out = append(out, toRuleInfo(r))
	}
	return out
}

// ListGlobal returns every global rule.
func (h *PermissionHandler) ListGlobal(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListGlobal()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, toRuleInfos(rules))
}

// ListByProject returns every rule scoped to a project.
func (h *PermissionHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListByProject(mux.Vars(r)["project"])
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, toRuleInfos(rules))
}

// Create inserts a new rule. An absent project_id makes it global.
func (h *PermissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID   *string `json:"project_id"`
		ToolName    string  `json:"tool_name"`
		RuleContent string  `json:"rule_content"`
		Behavior    string  `json:"behavior"`
		Priority    int     `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.ToolName == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "tool_name is required")
		return
	}
	if body.Behavior != string(permission.BehaviorAllow) && body.Behavior != string(permission.BehaviorDeny) {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "behavior must be allow or deny")
		return
	}

	rule, err := h.store.CreateRule(permission.Rule{
		ProjectID:   body.ProjectID,
		ToolName:    body.ToolName,
		RuleContent: body.RuleContent,
		Behavior:    permission.Behavior(body.Behavior),
		Priority:    body.Priority,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, toRuleInfo(rule))
}

// Update applies a partial update. The payload is passed through as a
// field dictionary; the store's column allowlist decides which keys take
// effect, so unexpected keys are dropped rather than rejected.
func (h *PermissionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid rule id")
		return
	}

	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if behavior, ok := fields["behavior"].(string); ok {
		if behavior != string(permission.BehaviorAllow) && behavior != string(permission.BehaviorDeny) {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "behavior must be allow or deny")
			return
		}
	}

	rule, err := h.store.UpdateRule(id, fields)
	if err != nil {
		WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, toRuleInfo(rule))
}

// Log returns a session's audit trail: one entry per permission
// decision, in decision order.
func (h *PermissionHandler) Log(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListLogBySession(mux.Vars(r)["session"])
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	type logInfo struct {
		ID             int64           `json:"id"`
		SessionID      string          `json:"session_id"`
		RequestID      string          `json:"request_id"`
		ToolName       string          `json:"tool_name"`
		ToolInput      json.RawMessage `json:"tool_input"`
		Decision       string          `json:"decision"`
		DecisionSource string          `json:"decision_source"`
		RuleID         *int64          `json:"rule_id,omitempty"`
		DecidedBy      string          `json:"decided_by"`
		DecidedAt      time.Time       `json:"decided_at"`
	}
	out := make([]logInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, logInfo{
			ID:             e.ID,
			SessionID:      e.SessionID,
			RequestID:      e.RequestID,
			ToolName:       e.ToolName,
			ToolInput:      json.RawMessage(e.ToolInputJSON),
			Decision:       string(e.Decision),
			DecisionSource: string(e.DecisionSource),
			RuleID:         e.RuleID,
			DecidedBy:      e.DecidedBy,
			DecidedAt:      e.DecidedAt,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

// Delete removes a rule.
func (h *PermissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid rule id")
		return
	}
	if err := h.store.DeleteRule(id); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
