// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"fmt"
)

// Project is the folder-backed configuration object a session belongs to.
// Projects are owned by the project-import collaborator; this store only
// reads them, plus a create used by tests and the import surface.
type Project struct {
	ID                    string
	FolderPath            string
	DefaultModel          string
	DefaultPermissionMode string
	SystemPrompt          string
	AppendSystemPrompt    string
}

// GetProject fetches a project by id.
func (s *Store) GetProject(id string) (Project, error) {
	row := s.db.QueryRow(
		`SELECT id, folder_path, default_model, default_permission_mode, system_prompt, append_system_prompt
		 FROM projects WHERE id = ?`, id)

	var p Project
	var model, mode, prompt, appendPrompt sql.NullString
	if err := row.Scan(&p.ID, &p.FolderPath, &model, &mode, &prompt, &appendPrompt); err != nil {
		return Project{}, fmt.Errorf("store: get project: %w", err)
	}
	p.DefaultModel = model.String
	p.DefaultPermissionMode = mode.String
	p.SystemPrompt = prompt.String
	p.AppendSystemPrompt = appendPrompt.String
	return p, nil
}

// ListProjects returns every project.
func (s *Store) ListProjects() ([]Project, error) {
	rows, err := s.db.Query(
		`SELECT id, folder_path, default_model, default_permission_mode, system_prompt, append_system_prompt
		 FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		var model, mode, prompt, appendPrompt sql.NullString
		if err := rows.Scan(&p.ID, &p.FolderPath, &model, &mode, &prompt, &appendPrompt); err != nil {
			return nil, fmt.Errorf("store: scan project: %w", err)
		}
		p.DefaultModel = model.String
		p.DefaultPermissionMode = mode.String
		p.SystemPrompt = prompt.String
		p.AppendSystemPrompt = appendPrompt.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateProject inserts a project row.
func (s *Store) CreateProject(p Project) error {
	_, err := s.db.Exec(
		`INSERT INTO projects (id, folder_path, default_model, default_permission_mode, system_prompt, append_system_prompt)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.FolderPath, p.DefaultModel, p.DefaultPermissionMode, p.SystemPrompt, p.AppendSystemPrompt,
	)
	if err != nil {
		return fmt.Errorf("store: create project: %w", err)
	}
	return nil
}
