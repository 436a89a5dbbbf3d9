// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// matchToolName reports whether a rule's tool name selector matches the
// request's tool name. "*" matches any tool.
func matchToolName(ruleToolName, requestToolName string) bool {
	return ruleToolName == "*" || ruleToolName == requestToolName
}

// targetValue extracts the string a rule's content pattern is matched
// against, per tool.
func targetValue(toolName string, toolInput map[string]interface{}) string {
	switch toolName {
	case "Bash":
		if v, ok := toolInput["command"].(string); ok {
			return v
		}
		return ""
	case "Read", "Write", "Edit":
		if v, ok := toolInput["file_path"].(string); ok {
			return v
		}
		return ""
	default:
		return canonicalJSON(toolInput)
	}
}

// canonicalJSON serializes toolInput with keys sorted, so the same input
// always produces the same string to match against.
func canonicalJSON(toolInput map[string]interface{}) string {
	if toolInput == nil {
		toolInput = map[string]interface{}{}
	}
	keys := make([]string, 0, len(toolInput))
	for k := range toolInput {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]interface{}, len(toolInput))
	for _, k := range keys {
		ordered[k] = toolInput[k]
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return ""
	}
	return string(b)
}

// matchContent reports whether target satisfies the rule content
// pattern: a limited glob where '*' means any run of characters, plus
// the prefix-colon shorthand.
func matchContent(pattern, target string) bool {
	if pattern == "" {
		return true
	}

	if prefix, ok := prefixColonPrefix(pattern); ok {
		return strings.HasPrefix(target, prefix)
	}

	re, err := compileGlob(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(target)
}

// prefixColonPrefix detects the "word:*" prefix shorthand: if pattern
// contains a colon and the suffix after the first colon is exactly "*",
// the match is a plain prefix test on the portion before the colon.
func prefixColonPrefix(pattern string) (string, bool) {
	idx := strings.Index(pattern, ":")
	if idx < 0 {
		return "", false
	}
	if pattern[idx+1:] != "*" {
		return "", false
	}
	return pattern[:idx], true
}

// compileGlob converts a pattern where "*" means "any run of characters"
// and everything else is literal into a full-string anchored regex.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		if r == '*' {
			sb.WriteString(".*")
			continue
		}
		sb.WriteString(regexp.QuoteMeta(string(r)))
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
