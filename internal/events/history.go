// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"sort"
	"sync"
	"time"
)

// EventHistoryConfig configures event history.
type EventHistoryConfig struct {
	MaxEvents int
	MaxAge    time.Duration
}

// EventHistory retains the last MaxEvents bus events in a fixed ring:
// once full, each Add overwrites the oldest entry in place, so steady
// high-volume streaming (one event per agent frame) never reallocates.
// Entries are held in arrival order; because arrival order is the
// ordering guarantee the bus gives per session, age pruning only ever
// advances the ring's head.
type EventHistory struct {
	mu     sync.RWMutex
	ring   []Event
	head   int // index of the oldest entry
	count  int
	maxAge time.Duration
}

// NewEventHistory creates a new event history.
func NewEventHistory(cfg EventHistoryConfig) *EventHistory {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 10000
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}

	return &EventHistory{
		ring:   make([]Event, cfg.MaxEvents),
		maxAge: cfg.MaxAge,
	}
}

// Add stores an event, overwriting the oldest entry when the ring is
// full.
func (h *EventHistory) Add(event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count < len(h.ring) {
		h.ring[(h.head+h.count)%len(h.ring)] = event
		h.count++
		return nil
	}

	h.ring[h.head] = event
	h.head = (h.head + 1) % len(h.ring)
	return nil
}

// Query retrieves events matching filter, oldest first. Type patterns
// are compiled once per query, not once per event.
func (h *EventHistory) Query(filter EventFilter) ([]Event, error) {
	var patterns []CompiledPattern
	for _, raw := range filter.Types {
		compiled, err := CompilePattern(raw)
		if err != nil {
			continue // an unparsable pattern selects nothing
		}
		patterns = append(patterns, compiled)
	}

	h.mu.RLock()
	result := make([]Event, 0)
	for i := 0; i < h.count; i++ {
		event := h.ring[(h.head+i)%len(h.ring)]
		if matchesFilter(event, filter, patterns) {
			result = append(result, event)
		}
	}
	h.mu.RUnlock()

	// Arrival order is per-session only; a cross-session query still
	// reads best in timestamp order. The stable sort keeps arrival order
	// for entries stamped in the same instant.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	// A limit keeps the newest entries
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}

	return result, nil
}

// matchesFilter checks one event against the filter, with type patterns
// already compiled.
func matchesFilter(event Event, filter EventFilter, patterns []CompiledPattern) bool {
	if len(filter.Types) > 0 {
		matched := false
		for _, p := range patterns {
			if p.Match(event.Type) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if filter.SessionID != "" && event.SessionID != filter.SessionID {
		return false
	}

	if !filter.Since.IsZero() && event.Timestamp.Before(filter.Since) {
		return false
	}

	if !filter.Until.IsZero() && event.Timestamp.After(filter.Until) {
		return false
	}

	return true
}

// Prune drops entries older than max age by advancing the ring's head
// past them. Entries are in arrival order, so pruning never leaves an
// aged-out entry behind a fresh one for long; the occasional straggler
// is filtered again at query time by Since/Until.
func (h *EventHistory) Prune() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-h.maxAge)
	for h.count > 0 {
		oldest := h.ring[h.head]
		if oldest.Timestamp.After(cutoff) {
			break
		}
		h.ring[h.head] = Event{}
		h.head = (h.head + 1) % len(h.ring)
		h.count--
	}
	return nil
}

// Close releases resources.
func (h *EventHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring = nil
	h.head = 0
	h.count = 0
	return nil
}
