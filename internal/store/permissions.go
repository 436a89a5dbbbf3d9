// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/groupsio/conduit/internal/permission"
)

// ListDenyRules returns the project-scoped deny rules for projectID.
func (s *Store) ListDenyRules(projectID string) ([]permission.Rule, error) {
	return s.queryRules(`SELECT id, project_id, tool_name, rule_content, behavior, priority, created_at
		FROM permission_rules WHERE project_id = ? AND behavior = 'deny'`, projectID)
}

// ListAllowRules returns the project-scoped allow rules for projectID.
func (s *Store) ListAllowRules(projectID string) ([]permission.Rule, error) {
	return s.queryRules(`SELECT id, project_id, tool_name, rule_content, behavior, priority, created_at
		FROM permission_rules WHERE project_id = ? AND behavior = 'allow'`, projectID)
}

// ListGlobalDenyRules returns the global (project_id IS NULL) deny rules.
func (s *Store) ListGlobalDenyRules() ([]permission.Rule, error) {
	return s.queryRules(`SELECT id, project_id, tool_name, rule_content, behavior, priority, created_at
		FROM permission_rules WHERE project_id IS NULL AND behavior = 'deny'`)
}

// ListGlobalAllowRules returns the global (project_id IS NULL) allow rules.
func (s *Store) ListGlobalAllowRules() ([]permission.Rule, error) {
	return s.queryRules(`SELECT id, project_id, tool_name, rule_content, behavior, priority, created_at
		FROM permission_rules WHERE project_id IS NULL AND behavior = 'allow'`)
}

// ListByProject returns every rule scoped to projectID, regardless of behavior.
func (s *Store) ListByProject(projectID string) ([]permission.Rule, error) {
	return s.queryRules(`SELECT id, project_id, tool_name, rule_content, behavior, priority, created_at
		FROM permission_rules WHERE project_id = ? ORDER BY priority DESC, id`, projectID)
}

// ListGlobal returns every global rule, regardless of behavior.
func (s *Store) ListGlobal() ([]permission.Rule, error) {
	return s.queryRules(`SELECT id, project_id, tool_name, rule_content, behavior, priority, created_at
		FROM permission_rules WHERE project_id IS NULL ORDER BY priority DESC, id`)
}

// CreateRule inserts a new rule and returns it with its assigned ID and
// creation timestamp.
func (s *Store) CreateRule(r permission.Rule) (permission.Rule, error) {
	r.CreatedAt = time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO permission_rules (project_id, tool_name, rule_content, behavior, priority, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ProjectID, r.ToolName, r.RuleContent, string(r.Behavior), r.Priority, r.CreatedAt,
	)
	if err != nil {
		return permission.Rule{}, fmt.Errorf("store: create rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return permission.Rule{}, fmt.Errorf("store: create rule: %w", err)
	}
	r.ID = id
	return r, nil
}

// updatableRuleColumns is the explicit allowlist of columns a rule update
// payload may touch. Any other key in the fields map is silently ignored:
// a payload must not be able to rewrite a rule's identity or scope.
var updatableRuleColumns = map[string]string{
	"tool_name":    "tool_name",
	"rule_content": "rule_content",
	"behavior":     "behavior",
	"priority":     "priority",
}

// UpdateRule applies fields to the rule identified by id, ignoring any key
// not present in updatableRuleColumns, and returns the updated rule.
func (s *Store) UpdateRule(id int64, fields map[string]interface{}) (permission.Rule, error) {
	var setClauses []string
	var args []interface{}

	for key, col := range updatableRuleColumns {
		v, ok := fields[key]
		if !ok {
			continue
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, v)
	}

	if len(setClauses) > 0 {
		query := "UPDATE permission_rules SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
		args = append(args, id)
		if _, err := s.db.Exec(query, args...); err != nil {
			return permission.Rule{}, fmt.Errorf("store: update rule: %w", err)
		}
	}

	row := s.db.QueryRow(
		`SELECT id, project_id, tool_name, rule_content, behavior, priority, created_at
		 FROM permission_rules WHERE id = ?`, id)
	return scanRule(row)
}

// DeleteRule removes a rule by id.
func (s *Store) DeleteRule(id int64) error {
	_, err := s.db.Exec(`DELETE FROM permission_rules WHERE id = ?`, id)
	return err
}

// AppendLog writes one append-only audit row. permission_log has no
// update path in this store: by construction it can only grow.
func (s *Store) AppendLog(entry permission.LogEntry) error {
	if entry.DecidedAt.IsZero() {
		entry.DecidedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO permission_log (session_id, request_id, tool_name, tool_input_json, decision,
			decision_source, rule_id, decided_by, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.RequestID, entry.ToolName, entry.ToolInputJSON, string(entry.Decision),
		string(entry.DecisionSource), entry.RuleID, entry.DecidedBy, entry.DecidedAt,
	)
	return err
}

// ListLogBySession returns a session's audit rows in decision order.
func (s *Store) ListLogBySession(sessionID string) ([]permission.LogEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, request_id, tool_name, tool_input_json, decision,
			decision_source, rule_id, decided_by, decided_at
		 FROM permission_log WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list permission log: %w", err)
	}
	defer rows.Close()

	var out []permission.LogEntry
	for rows.Next() {
		var entry permission.LogEntry
		var decision, source string
		var ruleID sql.NullInt64
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.RequestID, &entry.ToolName,
			&entry.ToolInputJSON, &decision, &source, &ruleID, &entry.DecidedBy, &entry.DecidedAt); err != nil {
			return nil, fmt.Errorf("store: scan permission log: %w", err)
		}
		entry.Decision = permission.Behavior(decision)
		entry.DecisionSource = permission.DecisionSource(source)
		if ruleID.Valid {
			entry.RuleID = &ruleID.Int64
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) queryRules(query string, args ...interface{}) ([]permission.Rule, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list rules: %w", err)
	}
	defer rows.Close()

	var out []permission.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(row rowScanner) (permission.Rule, error) {
	var r permission.Rule
	var behavior string
	var projectID sql.NullString
	if err := row.Scan(&r.ID, &projectID, &r.ToolName, &r.RuleContent, &behavior, &r.Priority, &r.CreatedAt); err != nil {
		return permission.Rule{}, fmt.Errorf("store: scan rule: %w", err)
	}
	if projectID.Valid {
		r.ProjectID = &projectID.String
	}
	r.Behavior = permission.Behavior(behavior)
	return r, nil
}
