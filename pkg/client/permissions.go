// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// PermissionClient provides access to permission rule management.
type PermissionClient struct {
	c *Client
}

// Rule is one permission rule. A nil ProjectID means the rule is global.
type Rule struct {
	ID          int64     `json:"id"`
	ProjectID   *string   `json:"project_id,omitempty"`
	ToolName    string    `json:"tool_name"`
	RuleContent string    `json:"rule_content"`
	Behavior    string    `json:"behavior"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}

// RuleParams are the inputs to rule creation.
type RuleParams struct {
	ProjectID   *string `json:"project_id,omitempty"`
	ToolName    string  `json:"tool_name"`
	RuleContent string  `json:"rule_content,omitempty"`
	Behavior    string  `json:"behavior"`
	Priority    int     `json:"priority,omitempty"`
}

// Create inserts a new rule.
func (pc *PermissionClient) Create(ctx context.Context, params RuleParams) (*Rule, error) {
	data, err := pc.c.postJSON(ctx, "/api/v1/permissions/rules", params)
	if err != nil {
		return nil, err
	}
	var rule Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("failed to parse rule: %w", err)
	}
	return &rule, nil
}

// ListGlobal returns every global rule.
func (pc *PermissionClient) ListGlobal(ctx context.Context) ([]Rule, error) {
	data, err := pc.c.get(ctx, "/api/v1/permissions/rules")
	if err != nil {
		return nil, err
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return rules, nil
}

// ListByProject returns every rule scoped to a project.
func (pc *PermissionClient) ListByProject(ctx context.Context, projectID string) ([]Rule, error) {
	data, err := pc.c.get(ctx, "/api/v1/projects/"+url.PathEscape(projectID)+"/permissions/rules")
	if err != nil {
		return nil, err
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return rules, nil
}

// Update applies a partial update. Only tool_name, rule_content,
// behavior, and priority take effect; other keys are ignored by the
// server.
func (pc *PermissionClient) Update(ctx context.Context, id int64, fields map[string]interface{}) (*Rule, error) {
	data, err := pc.c.patchJSON(ctx, fmt.Sprintf("/api/v1/permissions/rules/%d", id), fields)
	if err != nil {
		return nil, err
	}
	var rule Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("failed to parse rule: %w", err)
	}
	return &rule, nil
}

// Delete removes a rule.
func (pc *PermissionClient) Delete(ctx context.Context, id int64) error {
	_, err := pc.c.delete(ctx, fmt.Sprintf("/api/v1/permissions/rules/%d", id))
	return err
}
