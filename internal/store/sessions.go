// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Session mirrors the sessions table.
type Session struct {
	ID                string
	AgentID           string
	ProjectID         string
	DisplayName       string
	Status            string
	Model             string
	PID               sql.NullInt64
	WSPort            sql.NullInt64
	TotalCostUSD      float64
	TotalInputTokens  int
	TotalOutputTokens int
	NumTurns          int
	ErrorMessage      string
	CreatedAt         time.Time
	LastActiveAt      sql.NullTime
	ClosedAt          sql.NullTime
}

// CreateSession inserts a new session row with zeroed metrics, in the
// status carried by sess (the session manager creates rows as "starting").
func (s *Store) CreateSession(sess Session) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, agent_id, project_id, display_name, status, model, pid, ws_port,
			total_cost_usd, total_input_tokens, total_output_tokens, num_turns, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, '', ?)`,
		sess.ID, sess.AgentID, sess.ProjectID, sess.DisplayName, sess.Status, sess.Model, sess.PID, sess.WSPort, sess.CreatedAt,
	)
	return err
}

// GetSession fetches a session by id.
func (s *Store) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(
		`SELECT id, agent_id, project_id, display_name, status, model, pid, ws_port,
			total_cost_usd, total_input_tokens, total_output_tokens, num_turns, error_message,
			created_at, last_active_at, closed_at
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns every session.
func (s *Store) ListSessions() ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, agent_id, project_id, display_name, status, model, pid, ws_port,
			total_cost_usd, total_input_tokens, total_output_tokens, num_turns, error_message,
			created_at, last_active_at, closed_at
		 FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ListNonTerminalSessions returns every session whose status is not
// "closed" or "error", the candidates for orphan cleanup.
func (s *Store) ListNonTerminalSessions() ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, agent_id, project_id, display_name, status, model, pid, ws_port,
			total_cost_usd, total_input_tokens, total_output_tokens, num_turns, error_message,
			created_at, last_active_at, closed_at
		 FROM sessions WHERE status NOT IN ('closed', 'error')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// SetAgentID persists the agent-assigned session id the first time it is
// observed; it is never overwritten thereafter.
func (s *Store) SetAgentID(id, agentID string) error {
	_, err := s.db.Exec(`UPDATE sessions SET agent_id = ? WHERE id = ? AND agent_id = ''`, agentID, id)
	return err
}

// SetStatus sets the session's status without touching metrics.
func (s *Store) SetStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE sessions SET status = ? WHERE id = ?`, status, id)
	return err
}

// ApplyResult atomically sets the cumulative cost/token totals,
// increments num_turns, updates last_active_at, and sets status to idle.
// The totals are SET, not added: the agent reports running totals.
func (s *Store) ApplyResult(id string, costUSD float64, inputTokens, outputTokens int, now time.Time) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE sessions
			 SET total_cost_usd = ?, total_input_tokens = ?, total_output_tokens = ?,
			     num_turns = num_turns + 1, last_active_at = ?, status = 'idle'
			 WHERE id = ?`,
			costUSD, inputTokens, outputTokens, now, id,
		)
		return err
	})
}

// SetError marks a session errored, recording the reason and closed_at.
func (s *Store) SetError(id, errMsg string, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET status = 'error', error_message = ?, closed_at = ? WHERE id = ?`,
		errMsg, now, id)
	return err
}

// SetClosed marks a session closed by caller request.
func (s *Store) SetClosed(id string, now time.Time) error {
	_, err := s.db.Exec(`UPDATE sessions SET status = 'closed', closed_at = ? WHERE id = ?`, now, id)
	return err
}

// SetPID records the subprocess PID once it is known.
func (s *Store) SetPID(id string, pid int) error {
	_, err := s.db.Exec(`UPDATE sessions SET pid = ? WHERE id = ?`, pid, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID, &sess.AgentID, &sess.ProjectID, &sess.DisplayName, &sess.Status, &sess.Model,
		&sess.PID, &sess.WSPort, &sess.TotalCostUSD, &sess.TotalInputTokens, &sess.TotalOutputTokens,
		&sess.NumTurns, &sess.ErrorMessage, &sess.CreatedAt, &sess.LastActiveAt, &sess.ClosedAt,
	)
	if err != nil {
		return Session{}, fmt.Errorf("store: scan session: %w", err)
	}
	return sess, nil
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
