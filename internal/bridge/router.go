// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"encoding/json"
	"log"

	"github.com/groupsio/conduit/internal/events"
	"github.com/groupsio/conduit/internal/protocol"
)

// Callbacks are the nullable typed handlers the router dispatches to.
type Callbacks struct {
	OnSystemInit        func(msg protocol.InboundMessage)
	OnAssistant         func(msg protocol.InboundMessage)
	OnStreamEvent       func(msg protocol.InboundMessage)
	OnResult            func(msg protocol.InboundMessage)
	OnPermissionRequest func(msg protocol.InboundMessage)
}

// Route dispatches one parsed inbound message by type/subtype to the
// matching callback and publishes the corresponding bus event. It performs
// no I/O of its own and holds no state.
func Route(ctx context.Context, bus events.EventBus, sessionID string, msg protocol.InboundMessage, cb Callbacks) {
	switch msg.Type {
	case protocol.TypeSystem:
		if msg.IsSystemInit() && cb.OnSystemInit != nil {
			cb.OnSystemInit(msg)
		}
		publish(ctx, bus, events.EventSessionMessage, sessionID, msg)

	case protocol.TypeAssistant:
		if cb.OnAssistant != nil {
			cb.OnAssistant(msg)
		}
		publish(ctx, bus, events.EventSessionMessage, sessionID, msg)

	case protocol.TypeStreamEvent, protocol.TypeToolProgress:
		if cb.OnStreamEvent != nil {
			cb.OnStreamEvent(msg)
		}
		publish(ctx, bus, events.EventStreamEvent, sessionID, msg)

	case protocol.TypeResult:
		if cb.OnResult != nil {
			cb.OnResult(msg)
		}
		publish(ctx, bus, events.EventSessionResult, sessionID, msg)

	case protocol.TypeControlRequest:
		if msg.IsCanUseTool() {
			if cb.OnPermissionRequest != nil {
				cb.OnPermissionRequest(msg)
			}
			return
		}
		if msg.IsSystemInit() && cb.OnSystemInit != nil {
			cb.OnSystemInit(msg)
		}
		publish(ctx, bus, events.EventSessionMessage, sessionID, msg)

	case protocol.TypeKeepAlive:
		// Observed in documentation only; nothing to do.

	default:
		log.Printf("bridge: session %s unknown message type %q, forwarding", sessionID, msg.Type)
		publish(ctx, bus, events.EventSessionMessage, sessionID, msg)
	}
}

func publish(ctx context.Context, bus events.EventBus, eventType, sessionID string, msg protocol.InboundMessage) {
	if bus == nil {
		return
	}
	bus.Publish(ctx, events.Event{
		Type:      eventType,
		SessionID: sessionID,
		Payload: map[string]interface{}{
			"message": json.RawMessage(msg.Raw),
		},
	})
}
