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

// SessionClient provides access to session lifecycle operations.
type SessionClient struct {
	c *Client
}

// Session is one agent session as reported by the API.
type Session struct {
	ID                string     `json:"id"`
	AgentID           string     `json:"agent_id,omitempty"`
	ProjectID         string     `json:"project_id"`
	DisplayName       string     `json:"display_name"`
	Status            string     `json:"status"`
	Model             string     `json:"model,omitempty"`
	PID               *int64     `json:"pid,omitempty"`
	WSPort            *int64     `json:"ws_port,omitempty"`
	TotalCostUSD      float64    `json:"total_cost_usd"`
	TotalInputTokens  int        `json:"total_input_tokens"`
	TotalOutputTokens int        `json:"total_output_tokens"`
	NumTurns          int        `json:"num_turns"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	LastActiveAt      *time.Time `json:"last_active_at,omitempty"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

// SessionParams are the inputs to session creation.
type SessionParams struct {
	ProjectID       string `json:"project_id"`
	DisplayName     string `json:"display_name"`
	Model           string `json:"model,omitempty"`
	PermissionMode  string `json:"permission_mode,omitempty"`
	ResumeSessionID string `json:"resume_session_id,omitempty"`
	ForkSession     bool   `json:"fork_session,omitempty"`
}

// TranscriptEntry is one stored NDJSON frame from a session's transcript.
type TranscriptEntry struct {
	ID        int64           `json:"id"`
	Direction string          `json:"direction"`
	FrameType string          `json:"frame_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Create spawns a new session. The call blocks until the agent has
// connected back to its bridge or creation has failed.
func (sc *SessionClient) Create(ctx context.Context, params SessionParams) (*Session, error) {
	data, err := sc.c.postJSON(ctx, "/api/v1/sessions", params)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &sess, nil
}

// List returns every session.
func (sc *SessionClient) List(ctx context.Context) ([]Session, error) {
	data, err := sc.c.get(ctx, "/api/v1/sessions")
	if err != nil {
		return nil, err
	}
	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to parse sessions: %w", err)
	}
	return sessions, nil
}

// Get returns one session.
func (sc *SessionClient) Get(ctx context.Context, id string) (*Session, error) {
	data, err := sc.c.get(ctx, "/api/v1/sessions/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &sess, nil
}

// SendMessage hands one user turn to the session's agent.
func (sc *SessionClient) SendMessage(ctx context.Context, id, content string) error {
	_, err := sc.c.postJSON(ctx, "/api/v1/sessions/"+url.PathEscape(id)+"/messages",
		map[string]string{"content": content})
	return err
}

// Interrupt asks the agent to stop its current turn.
func (sc *SessionClient) Interrupt(ctx context.Context, id string) error {
	_, err := sc.c.post(ctx, "/api/v1/sessions/"+url.PathEscape(id)+"/interrupt")
	return err
}

// Kill terminates the session's subprocess and closes it.
func (sc *SessionClient) Kill(ctx context.Context, id string) error {
	_, err := sc.c.delete(ctx, "/api/v1/sessions/"+url.PathEscape(id))
	return err
}

// Messages returns the session transcript, oldest first. A limit of 0
// returns everything.
func (sc *SessionClient) Messages(ctx context.Context, id string, limit int) ([]TranscriptEntry, error) {
	path := "/api/v1/sessions/" + url.PathEscape(id) + "/messages"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	data, err := sc.c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var msgs []TranscriptEntry
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to parse transcript: %w", err)
	}
	return msgs, nil
}
