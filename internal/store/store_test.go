// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/conduit/internal/permission"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "conduit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProject(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateProject(Project{ID: id, FolderPath: "/tmp/" + id}))
}

func seedSession(t *testing.T, s *Store, id, projectID string) {
	t.Helper()
	require.NoError(t, s.CreateSession(Session{
		ID:        id,
		ProjectID: projectID,
		Status:    "starting",
		CreatedAt: time.Now().UTC(),
	}))
}

func TestApplyResult_SetsTotalsDoesNotAccumulate(t *testing.T) {
	s := newTestStore(t)
	seedProject(t, s, "p1")
	seedSession(t, s, "s1", "p1")

	require.NoError(t, s.ApplyResult("s1", 0.05, 100, 50, time.Now().UTC()))
	sess, err := s.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 0.05, sess.TotalCostUSD)
	assert.Equal(t, 100, sess.TotalInputTokens)
	assert.Equal(t, 50, sess.TotalOutputTokens)
	assert.Equal(t, 1, sess.NumTurns)
	assert.Equal(t, "idle", sess.Status)

	// The second result replaces the totals; only num_turns accumulates.
	require.NoError(t, s.ApplyResult("s1", 0.12, 240, 130, time.Now().UTC()))
	sess, err = s.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 0.12, sess.TotalCostUSD)
	assert.Equal(t, 240, sess.TotalInputTokens)
	assert.Equal(t, 130, sess.TotalOutputTokens)
	assert.Equal(t, 2, sess.NumTurns)
	assert.True(t, sess.LastActiveAt.Valid)
}

func TestSetAgentID_NeverOverwrites(t *testing.T) {
	s := newTestStore(t)
	seedProject(t, s, "p1")
	seedSession(t, s, "s1", "p1")

	require.NoError(t, s.SetAgentID("s1", "agent-a"))
	require.NoError(t, s.SetAgentID("s1", "agent-b"))

	sess, err := s.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "agent-a", sess.AgentID)
}

func TestSetErrorAndClosedStampClosedAt(t *testing.T) {
	s := newTestStore(t)
	seedProject(t, s, "p1")
	seedSession(t, s, "s1", "p1")
	seedSession(t, s, "s2", "p1")

	require.NoError(t, s.SetError("s1", "agent exited", time.Now().UTC()))
	sess, err := s.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "error", sess.Status)
	assert.Equal(t, "agent exited", sess.ErrorMessage)
	assert.True(t, sess.ClosedAt.Valid)

	require.NoError(t, s.SetClosed("s2", time.Now().UTC()))
	sess, err = s.GetSession("s2")
	require.NoError(t, err)
	assert.Equal(t, "closed", sess.Status)
	assert.True(t, sess.ClosedAt.Valid)
}

func TestListNonTerminalSessions(t *testing.T) {
	s := newTestStore(t)
	seedProject(t, s, "p1")
	seedSession(t, s, "s1", "p1")
	seedSession(t, s, "s2", "p1")
	seedSession(t, s, "s3", "p1")

	require.NoError(t, s.SetClosed("s2", time.Now().UTC()))
	require.NoError(t, s.SetError("s3", "x", time.Now().UTC()))

	live, err := s.ListNonTerminalSessions()
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "s1", live[0].ID)
}

func TestUpdateRule_ColumnAllowlist(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateRule(permission.Rule{
		ToolName:    "Bash",
		RuleContent: "git:*",
		Behavior:    permission.BehaviorAllow,
		Priority:    5,
	})
	require.NoError(t, err)

	// Keys outside the allowlist are silently ignored, including attempts
	// to rewrite identity or scope columns.
	updated, err := s.UpdateRule(created.ID, map[string]interface{}{
		"priority":   10,
		"id":         999,
		"project_id": "p-evil",
		"created_at": time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Nil(t, updated.ProjectID)
	assert.Equal(t, 10, updated.Priority)
	assert.Equal(t, "git:*", updated.RuleContent)
	assert.WithinDuration(t, created.CreatedAt, updated.CreatedAt, time.Second)
}

func TestUpdateRule_EmptyPayloadIsNoop(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateRule(permission.Rule{ToolName: "*", Behavior: permission.BehaviorDeny})
	require.NoError(t, err)

	updated, err := s.UpdateRule(created.ID, map[string]interface{}{"decided_by": "nobody"})
	require.NoError(t, err)
	assert.Equal(t, created.ToolName, updated.ToolName)
	assert.Equal(t, created.Behavior, updated.Behavior)
}

func TestRuleScopes(t *testing.T) {
	s := newTestStore(t)
	seedProject(t, s, "p1")

	pid := "p1"
	_, err := s.CreateRule(permission.Rule{ProjectID: &pid, ToolName: "Bash", Behavior: permission.BehaviorDeny, Priority: 10})
	require.NoError(t, err)
	_, err = s.CreateRule(permission.Rule{ToolName: "Bash", Behavior: permission.BehaviorAllow})
	require.NoError(t, err)

	projDeny, err := s.ListDenyRules("p1")
	require.NoError(t, err)
	require.Len(t, projDeny, 1)
	require.NotNil(t, projDeny[0].ProjectID)
	assert.Equal(t, "p1", *projDeny[0].ProjectID)

	globalAllow, err := s.ListGlobalAllowRules()
	require.NoError(t, err)
	require.Len(t, globalAllow, 1)
	assert.Nil(t, globalAllow[0].ProjectID)

	globalDeny, err := s.ListGlobalDenyRules()
	require.NoError(t, err)
	assert.Empty(t, globalDeny)
}

func TestAppendLogAndMessages(t *testing.T) {
	s := newTestStore(t)
	seedProject(t, s, "p1")
	seedSession(t, s, "s1", "p1")

	require.NoError(t, s.AppendLog(permission.LogEntry{
		SessionID:      "s1",
		RequestID:      "r1",
		ToolName:       "Bash",
		ToolInputJSON:  `{"command":"ls"}`,
		Decision:       permission.BehaviorAllow,
		DecisionSource: permission.SourceAutoDefault,
	}))

	require.NoError(t, s.AppendMessage(Message{
		SessionID:   "s1",
		Direction:   DirectionOutbound,
		FrameType:   "user",
		PayloadJSON: `{"type":"user"}`,
	}))
	require.NoError(t, s.AppendMessage(Message{
		SessionID:   "s1",
		Direction:   DirectionInbound,
		FrameType:   "assistant",
		PayloadJSON: `{"type":"assistant"}`,
	}))

	msgs, err := s.ListMessages("s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].FrameType)
	assert.Equal(t, "assistant", msgs[1].FrameType)

	limited, err := s.ListMessages("s1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestForeignKeysEnforced(t *testing.T) {
	s := newTestStore(t)

	// sessions.project_id references projects(id); with enforcement on,
	// inserting against a missing project must fail.
	err := s.CreateSession(Session{ID: "s1", ProjectID: "missing", Status: "starting", CreatedAt: time.Now().UTC()})
	require.Error(t, err)
}
