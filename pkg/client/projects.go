// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// ProjectClient provides access to project registration and lookup.
type ProjectClient struct {
	c *Client
}

// Project is a folder-backed project.
type Project struct {
	ID                    string `json:"ID"`
	FolderPath            string `json:"FolderPath"`
	DefaultModel          string `json:"DefaultModel"`
	DefaultPermissionMode string `json:"DefaultPermissionMode"`
	SystemPrompt          string `json:"SystemPrompt"`
	AppendSystemPrompt    string `json:"AppendSystemPrompt"`
}

// ProjectParams are the inputs to project registration.
type ProjectParams struct {
	FolderPath            string `json:"folder_path"`
	DefaultModel          string `json:"default_model,omitempty"`
	DefaultPermissionMode string `json:"default_permission_mode,omitempty"`
	SystemPrompt          string `json:"system_prompt,omitempty"`
	AppendSystemPrompt    string `json:"append_system_prompt,omitempty"`
}

// Create registers a project.
func (pc *ProjectClient) Create(ctx context.Context, params ProjectParams) (*Project, error) {
	data, err := pc.c.postJSON(ctx, "/api/v1/projects", params)
	if err != nil {
		return nil, err
	}
	var proj Project
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("failed to parse project: %w", err)
	}
	return &proj, nil
}

// List returns every project.
func (pc *ProjectClient) List(ctx context.Context) ([]Project, error) {
	data, err := pc.c.get(ctx, "/api/v1/projects")
	if err != nil {
		return nil, err
	}
	var projects []Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("failed to parse projects: %w", err)
	}
	return projects, nil
}

// Get returns one project.
func (pc *ProjectClient) Get(ctx context.Context, id string) (*Project, error) {
	data, err := pc.c.get(ctx, "/api/v1/projects/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var proj Project
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("failed to parse project: %w", err)
	}
	return &proj, nil
}
