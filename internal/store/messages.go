// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"time"
)

// Message directions in the transcript.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message is one transcript entry: an NDJSON frame that crossed the bridge
// in either direction.
type Message struct {
	ID          int64
	SessionID   string
	Direction   string
	FrameType   string
	PayloadJSON string
	CreatedAt   time.Time
}

// AppendMessage writes one transcript entry. The transcript is append-only:
// this store exposes no update or delete path for messages.
func (s *Store) AppendMessage(m Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO messages (session_id, direction, frame_type, payload_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.SessionID, m.Direction, m.FrameType, m.PayloadJSON, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// ListMessages returns a session's transcript in insertion order. A limit
// of 0 means no limit.
func (s *Store) ListMessages(sessionID string, limit int) ([]Message, error) {
	query := `SELECT id, session_id, direction, frame_type, payload_json, created_at
		 FROM messages WHERE session_id = ? ORDER BY id`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Direction, &m.FrameType, &m.PayloadJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
