// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// EventClient provides access to the event history.
type EventClient struct {
	c *Client
}

// Event is one bus event.
type Event struct {
	ID        string                 `json:"id"`
	Version   string                 `json:"version"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
}

// EventQuery filters event history reads. Zero values are omitted.
type EventQuery struct {
	Types     []string
	SessionID string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// History returns past events matching the query, oldest first.
func (ec *EventClient) History(ctx context.Context, query EventQuery) ([]Event, error) {
	params := url.Values{}
	for _, t := range query.Types {
		params.Add("type", t)
	}
	if query.SessionID != "" {
		params.Set("session_id", query.SessionID)
	}
	if !query.Since.IsZero() {
		params.Set("since", query.Since.Format(time.RFC3339))
	}
	if !query.Until.IsZero() {
		params.Set("until", query.Until.Format(time.RFC3339))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}

	path := "/api/v1/events"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	data, err := ec.c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}
	return events, nil
}
