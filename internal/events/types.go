// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the in-process pub/sub bus that fans session
// activity out to external subscribers (SSE / consumer WebSocket).
package events

import (
	"context"
	"time"
)

// Event represents an immutable event record.
type Event struct {
	ID        string                 `json:"id"`
	Version   string                 `json:"version"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types     []string // Event types to match (supports wildcards)
	SessionID string   // Filter by session id
	Since     time.Time
	Until     time.Time
	Limit     int
}

// EventBus is the core event pub/sub system.
//
// Subscribe takes an optional sessionID: when non-empty, the subscriber
// only observes events carrying that session id. An empty sessionID
// observes every session.
type EventBus interface {
	// Publish emits an event to all matching subscribers. Handler panics
	// are isolated so one bad subscriber never blocks delivery to the rest.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching
	// pattern and, if sessionID is non-empty, that session only.
	Subscribe(pattern, sessionID string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with a buffered channel.
	SubscribeAsync(pattern, sessionID string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// SubscriberCount reports the number of live subscriptions, for
	// health reporting.
	SubscriberCount() int

	// Clear removes all subscriptions without closing the bus (for tests).
	Clear()

	// Close shuts down the event bus gracefully.
	Close() error
}

// Bus event types published by the message router and session manager.
const (
	EventSessionMessage = "session.message"
	EventStreamEvent    = "stream.event"
	EventSessionResult  = "session.result"
	EventSessionError   = "session.error"
	EventSessionClosed  = "session.closed"
	EventSessionStatus  = "session.status"
)

// Session error reasons.
const (
	ReasonCLIFailedToConnect = "cli_failed_to_connect"
	ReasonUnexpectedExit     = "unexpected_exit"
)
