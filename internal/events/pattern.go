// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"errors"
	"strings"
)

// Event types are dot-separated, e.g. "session.message" or
// "stream.event". A subscription pattern selects a set of them:
//
//   - a pattern is a comma-separated list of alternatives, any of which
//     may match ("session.result,session.error")
//   - each alternative is matched segment-wise against the dot-split
//     event type; "*" matches exactly one segment ("*.event" matches
//     "stream.event" but not "stream.tool.event")
//   - a trailing "*" also absorbs any remaining segments ("session.*"
//     matches "session.message" and any deeper session type)
//   - a bare "*" matches every event type
//
// Compilation happens once per subscription; matching is a segment walk
// with no string scanning.

// CompiledPattern is a parsed subscription pattern.
type CompiledPattern struct {
	alts [][]string
}

// CompilePattern parses a pattern into its alternatives. An empty
// pattern, or one with an empty alternative ("a,,b") or empty segment
// ("session..message"), is rejected.
func CompilePattern(pattern string) (CompiledPattern, error) {
	if pattern == "" {
		return CompiledPattern{}, errors.New("empty pattern")
	}

	var alts [][]string
	for _, alt := range strings.Split(pattern, ",") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			return CompiledPattern{}, errors.New("empty pattern alternative")
		}
		segments := strings.Split(alt, ".")
		for _, seg := range segments {
			if seg == "" {
				return CompiledPattern{}, errors.New("empty pattern segment in " + alt)
			}
		}
		alts = append(alts, segments)
	}
	return CompiledPattern{alts: alts}, nil
}

// Match reports whether eventType is selected by the pattern.
func (p CompiledPattern) Match(eventType string) bool {
	if eventType == "" || len(p.alts) == 0 {
		return false
	}
	segments := strings.Split(eventType, ".")
	for _, alt := range p.alts {
		if matchSegments(alt, segments) {
			return true
		}
	}
	return false
}

// matchSegments walks pattern and type segments in lockstep. A "*" in
// the final pattern position absorbs the rest of the type.
func matchSegments(pattern, segments []string) bool {
	for i, p := range pattern {
		last := i == len(pattern)-1
		if p == "*" && last {
			// At least the absorbed segment itself must exist.
			return len(segments) > i
		}
		if i >= len(segments) {
			return false
		}
		if p != "*" && p != segments[i] {
			return false
		}
	}
	return len(pattern) == len(segments)
}

// MatchPattern is the one-shot form, for callers matching ad-hoc
// patterns (history queries) rather than long-lived subscriptions. An
// unparsable pattern matches nothing.
func MatchPattern(eventType, pattern string) bool {
	compiled, err := CompilePattern(pattern)
	if err != nil {
		return false
	}
	return compiled.Match(eventType)
}
