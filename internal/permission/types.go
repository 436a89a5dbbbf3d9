// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package permission implements the rule-based tool-use guardrail: rule
// CRUD, ordered deterministic evaluation, and an append-only audit log.
package permission

import "time"

// Behavior is the outcome of a permission decision.
type Behavior string

const (
	BehaviorAllow Behavior = "allow"
	BehaviorDeny  Behavior = "deny"
)

// DecisionSource records whether a decision came from a matched rule or
// the fallback default.
type DecisionSource string

const (
	SourceAutoRule    DecisionSource = "auto_rule"
	SourceAutoDefault DecisionSource = "auto_default"
)

// Rule is a permission rule. ProjectID is nil for a global rule.
// Only ToolName, RuleContent, Behavior, and Priority may be mutated after
// creation (enforced by the store's update path, not by this struct).
type Rule struct {
	ID          int64
	ProjectID   *string
	ToolName    string
	RuleContent string
	Behavior    Behavior
	Priority    int
	CreatedAt   time.Time
}

// Request is one tool-use request submitted for evaluation.
type Request struct {
	SessionID string
	ProjectID string
	RequestID string
	ToolName  string
	ToolInput map[string]interface{}
	DecidedBy string
}

// Decision is the result of evaluating a Request against the rule set.
type Decision struct {
	Behavior     Behavior
	Source       DecisionSource
	RuleID       *int64
	UpdatedInput map[string]interface{} // always nil today; forward-compat passthrough only
}

// LogEntry is one append-only audit row.
type LogEntry struct {
	ID             int64
	SessionID      string
	RequestID      string
	ToolName       string
	ToolInputJSON  string
	Decision       Behavior
	DecisionSource DecisionSource
	RuleID         *int64
	DecidedBy      string
	DecidedAt      time.Time
}

// Store is the persistence boundary the engine evaluates against and
// writes audit rows to. Implemented by internal/store against SQLite.
type Store interface {
	ListDenyRules(projectID string) ([]Rule, error)
	ListAllowRules(projectID string) ([]Rule, error)
	ListGlobalDenyRules() ([]Rule, error)
	ListGlobalAllowRules() ([]Rule, error)

	CreateRule(r Rule) (Rule, error)
	ListByProject(projectID string) ([]Rule, error)
	ListGlobal() ([]Rule, error)
	UpdateRule(id int64, fields map[string]interface{}) (Rule, error)
	DeleteRule(id int64) error

	AppendLog(entry LogEntry) error
	ListLogBySession(sessionID string) ([]LogEntry, error)
}
