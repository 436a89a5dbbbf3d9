// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/groupsio/conduit/internal/store"
)

// ProjectHandler exposes the thin project import surface sessions hang
// off. Discovery and richer import flows live outside this service.
type ProjectHandler struct {
	store *store.Store
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(st *store.Store) *ProjectHandler {
	return &ProjectHandler{store: st}
}

// List returns every project.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, projects)
}

// Get returns one project.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	proj, err := h.store.GetProject(mux.Vars(r)["project"])
	if err != nil {
		WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, proj)
}

// Create registers a folder-backed project.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FolderPath            string `json:"folder_path"`
		DefaultModel          string `json:"default_model"`
		DefaultPermissionMode string `json:"default_permission_mode"`
		SystemPrompt          string `json:"system_prompt"`
		AppendSystemPrompt    string `json:"append_system_prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.FolderPath == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "folder_path is required")
		return
	}
	if info, err := os.Stat(body.FolderPath); err != nil || !info.IsDir() {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "folder_path is not a directory")
		return
	}

	proj := store.Project{
		ID:                    uuid.New().String(),
		FolderPath:            body.FolderPath,
		DefaultModel:          body.DefaultModel,
		DefaultPermissionMode: body.DefaultPermissionMode,
		SystemPrompt:          body.SystemPrompt,
		AppendSystemPrompt:    body.AppendSystemPrompt,
	}
	if err := h.store.CreateProject(proj); err != nil {
		WriteError(w, http.StatusConflict, ErrConflict, err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, proj)
}
