// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"log"
	"time"
)

// Engine evaluates tool-use requests against the rule set.
type Engine struct {
	store Store
}

// NewEngine creates a permission engine backed by store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Evaluate runs the deterministic rule order:
//  1. project deny rules, highest priority first
//  2. global deny rules, highest priority first
//  3. project allow rules, highest priority first
//  4. global allow rules, highest priority first
//  5. fall through to auto_default allow
//
// It always writes exactly one audit log row, and it can never fail to
// return a decision: a rule-store read error is logged and treated as
// no rules matching, so the agent's liveness is preserved.
func (e *Engine) Evaluate(req Request) Decision {
	decision := e.evaluateRules(req)
	e.audit(req, decision)
	return decision
}

func (e *Engine) evaluateRules(req Request) Decision {
	target := targetValue(req.ToolName, req.ToolInput)

	projectDeny := e.listSafe("project deny", func() ([]Rule, error) { return e.store.ListDenyRules(req.ProjectID) })
	if rule, ok := firstMatch(projectDeny, req.ToolName, target); ok {
		return ruleDecision(rule, BehaviorDeny)
	}

	globalDeny := e.listSafe("global deny", e.store.ListGlobalDenyRules)
	if rule, ok := firstMatch(globalDeny, req.ToolName, target); ok {
		return ruleDecision(rule, BehaviorDeny)
	}

	projectAllow := e.listSafe("project allow", func() ([]Rule, error) { return e.store.ListAllowRules(req.ProjectID) })
	if rule, ok := firstMatch(projectAllow, req.ToolName, target); ok {
		return ruleDecision(rule, BehaviorAllow)
	}

	globalAllow := e.listSafe("global allow", e.store.ListGlobalAllowRules)
	if rule, ok := firstMatch(globalAllow, req.ToolName, target); ok {
		return ruleDecision(rule, BehaviorAllow)
	}

	return Decision{Behavior: BehaviorAllow, Source: SourceAutoDefault}
}

func ruleDecision(rule Rule, behavior Behavior) Decision {
	id := rule.ID
	return Decision{Behavior: behavior, Source: SourceAutoRule, RuleID: &id}
}

// firstMatch returns the highest-priority rule (ties broken by store
// order) among rules whose tool name and content pattern match.
func firstMatch(rules []Rule, toolName, target string) (Rule, bool) {
	sortByPriorityDesc(rules)
	for _, r := range rules {
		if !matchToolName(r.ToolName, toolName) {
			continue
		}
		if !matchContent(r.RuleContent, target) {
			continue
		}
		return r, true
	}
	return Rule{}, false
}

func sortByPriorityDesc(rules []Rule) {
	for i := 1; i < len(rules); i++ {
		for j := i; j > 0 && rules[j-1].Priority < rules[j].Priority; j-- {
			rules[j-1], rules[j] = rules[j], rules[j-1]
		}
	}
}

// listSafe calls a rule-listing function and swallows errors: the engine
// must never fail to return a decision.
func (e *Engine) listSafe(kind string, list func() ([]Rule, error)) []Rule {
	rules, err := list()
	if err != nil {
		log.Printf("permission: %s rule store read failed, falling through: %v", kind, err)
		return nil
	}
	return rules
}

func (e *Engine) audit(req Request, d Decision) {
	entry := LogEntry{
		SessionID:      req.SessionID,
		RequestID:      req.RequestID,
		ToolName:       req.ToolName,
		ToolInputJSON:  canonicalJSON(req.ToolInput),
		Decision:       d.Behavior,
		DecisionSource: d.Source,
		RuleID:         d.RuleID,
		DecidedBy:      req.DecidedBy,
		DecidedAt:      time.Now(),
	}
	if err := e.store.AppendLog(entry); err != nil {
		log.Printf("permission: failed to write audit log for request %s: %v", req.RequestID, err)
	}
}
