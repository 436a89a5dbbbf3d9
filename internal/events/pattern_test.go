// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePattern_Match(t *testing.T) {
	tests := []struct {
		name      string
		pattern   string
		eventType string
		matches   bool
	}{
		// Exact matches
		{
			name:      "exact match",
			pattern:   "session.message",
			eventType: "session.message",
			matches:   true,
		},
		{
			name:      "exact no match",
			pattern:   "session.message",
			eventType: "session.closed",
			matches:   false,
		},

		// Trailing wildcard absorbs the rest of the type
		{
			name:      "trailing wildcard matches sibling",
			pattern:   "session.*",
			eventType: "session.result",
			matches:   true,
		},
		{
			name:      "trailing wildcard matches deeper type",
			pattern:   "session.*",
			eventType: "session.tool.progress",
			matches:   true,
		},
		{
			name:      "trailing wildcard requires the absorbed segment",
			pattern:   "session.*",
			eventType: "session",
			matches:   false,
		},
		{
			name:      "trailing wildcard no match different prefix",
			pattern:   "session.*",
			eventType: "stream.event",
			matches:   false,
		},

		// Mid-position wildcard matches exactly one segment
		{
			name:      "leading wildcard matches one segment",
			pattern:   "*.event",
			eventType: "stream.event",
			matches:   true,
		},
		{
			name:      "leading wildcard does not span segments",
			pattern:   "*.event",
			eventType: "stream.tool.event",
			matches:   false,
		},
		{
			name:      "inner wildcard",
			pattern:   "session.*.delta",
			eventType: "session.text.delta",
			matches:   true,
		},
		{
			name:      "inner wildcard segment count must agree",
			pattern:   "session.*.delta",
			eventType: "session.delta",
			matches:   false,
		},

		// Match all
		{
			name:      "match all",
			pattern:   "*",
			eventType: "anything.here",
			matches:   true,
		},
		{
			name:      "match all single segment",
			pattern:   "*",
			eventType: "event",
			matches:   true,
		},

		// Comma-separated alternatives
		{
			name:      "alternative first arm",
			pattern:   "session.result,session.error",
			eventType: "session.result",
			matches:   true,
		},
		{
			name:      "alternative second arm",
			pattern:   "session.result,session.error",
			eventType: "session.error",
			matches:   true,
		},
		{
			name:      "alternative no arm",
			pattern:   "session.result,session.error",
			eventType: "session.message",
			matches:   false,
		},
		{
			name:      "alternative mixing exact and wildcard",
			pattern:   "session.message, stream.*",
			eventType: "stream.event",
			matches:   true,
		},

		// Edge cases
		{
			name:      "empty event type",
			pattern:   "session.*",
			eventType: "",
			matches:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := CompilePattern(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.matches, compiled.Match(tt.eventType))
		})
	}
}

func TestCompilePattern_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"empty pattern", ""},
		{"empty alternative", "session.message,,stream.*"},
		{"empty segment", "session..message"},
		{"trailing dot", "session."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompilePattern(tt.pattern)
			assert.Error(t, err)
		})
	}
}

func TestMatchPattern_OneShot(t *testing.T) {
	assert.True(t, MatchPattern("session.message", "session.*"))
	assert.False(t, MatchPattern("stream.event", "session.*"))

	// An unparsable pattern selects nothing rather than erroring.
	assert.False(t, MatchPattern("session.message", ""))
}

func TestCompiledPattern_Reuse(t *testing.T) {
	pattern, err := CompilePattern("session.*,stream.event")
	require.NoError(t, err)

	tests := []struct {
		eventType string
		matches   bool
	}{
		{"session.message", true},
		{"session.closed", true},
		{"stream.event", true},
		{"stream.progress", false},
		{"permission.decided", false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			assert.Equal(t, tt.matches, pattern.Match(tt.eventType))
		})
	}
}

func TestCompiledPattern_Concurrency(t *testing.T) {
	pattern, err := CompilePattern("session.*")
	require.NoError(t, err)

	done := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			for j := 0; j < 1000; j++ {
				pattern.Match("session.message")
				MatchPattern("session.closed", "session.*")
			}
			done <- true
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}
}
