// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/groupsio/conduit/internal/events"
	"github.com/groupsio/conduit/internal/session"
	"github.com/groupsio/conduit/internal/store"
)

// SessionHandler handles session lifecycle API requests and the
// external-consumer WebSocket.
type SessionHandler struct {
	manager *session.Manager
	store   *store.Store
	bus     events.EventBus
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(manager *session.Manager, st *store.Store, bus events.EventBus) *SessionHandler {
	return &SessionHandler{manager: manager, store: st, bus: bus}
}

// sessionInfo is the wire shape of a session row.
type sessionInfo struct {
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

func toSessionInfo(sess store.Session) sessionInfo {
	info := sessionInfo{
		ID:                sess.ID,
		AgentID:           sess.AgentID,
		ProjectID:         sess.ProjectID,
		DisplayName:       sess.DisplayName,
		Status:            sess.Status,
		Model:             sess.Model,
		TotalCostUSD:      sess.TotalCostUSD,
		TotalInputTokens:  sess.TotalInputTokens,
		TotalOutputTokens: sess.TotalOutputTokens,
		NumTurns:          sess.NumTurns,
		ErrorMessage:      sess.ErrorMessage,
		CreatedAt:         sess.CreatedAt,
	}
	if sess.PID.Valid {
		info.PID = &sess.PID.Int64
	}
	if sess.WSPort.Valid {
		info.WSPort = &sess.WSPort.Int64
	}
	if sess.LastActiveAt.Valid {
		t := sess.LastActiveAt.Time
		info.LastActiveAt = &t
	}
	if sess.ClosedAt.Valid {
		t := sess.ClosedAt.Time
		info.ClosedAt = &t
	}
	return info
}

// Create spawns a new session.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID       string `json:"project_id"`
		DisplayName     string `json:"display_name"`
		Model           string `json:"model"`
		PermissionMode  string `json:"permission_mode"`
		ResumeSessionID string `json:"resume_session_id"`
		ForkSession     bool   `json:"fork_session"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid JSON: "+err.Error())
		return
	}

	sess, err := h.manager.Create(r.Context(), session.CreateParams{
		ProjectID:       body.ProjectID,
		DisplayName:     body.DisplayName,
		Model:           body.Model,
		PermissionMode:  body.PermissionMode,
		ResumeSessionID: body.ResumeSessionID,
		ForkSession:     body.ForkSession,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toSessionInfo(sess))
}

// List returns every session.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.manager.List()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	out := make([]sessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionInfo(sess))
	}
	WriteJSON(w, http.StatusOK, out)
}

// Get returns one session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Get(mux.Vars(r)["session"])
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toSessionInfo(sess))
}

// Kill terminates a session.
func (h *SessionHandler) Kill(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Kill(mux.Vars(r)["session"]); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage hands one user turn to the session.
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := h.manager.SendMessage(mux.Vars(r)["session"], body.Content); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Interrupt forwards an interrupt to the session's agent.
func (h *SessionHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Interrupt(mux.Vars(r)["session"]); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Messages returns a session's transcript.
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session"]
	if _, err := h.manager.Get(sessionID); err != nil {
		WriteDomainError(w, err)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := h.store.ListMessages(sessionID, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	type messageInfo struct {
		ID        int64           `json:"id"`
		Direction string          `json:"direction"`
		FrameType string          `json:"frame_type"`
		Payload   json.RawMessage `json:"payload"`
		CreatedAt time.Time       `json:"created_at"`
	}
	out := make([]messageInfo, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageInfo{
			ID:        m.ID,
			Direction: m.Direction,
			FrameType: m.FrameType,
			Payload:   json.RawMessage(m.PayloadJSON),
			CreatedAt: m.CreatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

// consumerAction is an inbound frame on the consumer WebSocket.
type consumerAction struct {
	Action  string `json:"action"`
	Content string `json:"content,omitempty"`
}

// consumerFrame is an outbound frame on the consumer WebSocket.
type consumerFrame struct {
	Event     string      `json:"event"`
	SessionID string      `json:"session_id,omitempty"`
	Status    string      `json:"status,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// WebSocket runs the external-consumer connection for one session. The
// connection stays open across recoverable errors; it is closed only when
// the session id itself does not exist.
func (h *SessionHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session"]

	if _, err := h.manager.Get(sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Write mutex for thread-safe WebSocket writes
	var writeMu sync.Mutex
	writeFrame := func(frame consumerFrame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(frame)
	}

	writeFrame(consumerFrame{Event: "connected", SessionID: sessionID})

	// Subscribe to this session's events only; the async buffer keeps a
	// slow consumer from stalling the bus.
	subID, err := h.bus.SubscribeAsync("*", sessionID, func(_ context.Context, event events.Event) error {
		if frame, ok := consumerFrameFor(event); ok {
			writeFrame(frame)
		}
		return nil
	}, 100)
	if err != nil {
		writeFrame(consumerFrame{Event: "error", Message: err.Error()})
		return
	}
	defer h.bus.Unsubscribe(subID)

	// Set up ping/pong
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(54 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var action consumerAction
		if err := json.Unmarshal(data, &action); err != nil {
			writeFrame(consumerFrame{Event: "error", Message: "invalid JSON"})
			continue
		}

		switch action.Action {
		case "message":
			if err := h.manager.SendMessage(sessionID, action.Content); err != nil {
				writeFrame(consumerFrame{Event: "error", Message: err.Error()})
			}
		case "interrupt":
			if err := h.manager.Interrupt(sessionID); err != nil {
				writeFrame(consumerFrame{Event: "error", Message: err.Error()})
			}
		default:
			writeFrame(consumerFrame{Event: "error", Message: "unknown action: " + action.Action})
		}
	}
}

// consumerFrameFor translates one bus event into its consumer-facing
// frame. Events with no consumer representation return ok=false.
func consumerFrameFor(event events.Event) (consumerFrame, bool) {
	switch event.Type {
	case events.EventSessionMessage:
		msg, frameType, subtype := decodeBusMessage(event)
		if frameType == "system" && subtype == "init" {
			return consumerFrame{Event: "system_init", Data: msg}, true
		}
		if frameType == "assistant" {
			return consumerFrame{Event: "assistant", Data: msg}, true
		}
		// Unknown agent features pass through rather than being dropped.
		return consumerFrame{Event: "stream_event", Data: msg}, true

	case events.EventStreamEvent:
		msg, _, _ := decodeBusMessage(event)
		return consumerFrame{Event: "stream_event", Data: msg}, true

	case events.EventSessionResult:
		msg, _, _ := decodeBusMessage(event)
		return consumerFrame{Event: "result", Data: msg}, true

	case events.EventSessionStatus:
		status, _ := event.Payload["status"].(string)
		return consumerFrame{Event: "session_status", Status: status}, true

	case events.EventSessionClosed:
		return consumerFrame{Event: "session_status", Status: session.StatusClosed}, true

	case events.EventSessionError:
		reason, _ := event.Payload["reason"].(string)
		return consumerFrame{Event: "error", Message: reason}, true
	}
	return consumerFrame{}, false
}

// decodeBusMessage pulls the raw agent frame out of a bus event payload
// along with its type/subtype tags.
func decodeBusMessage(event events.Event) (interface{}, string, string) {
	raw, ok := event.Payload["message"]
	if !ok {
		return event.Payload, "", ""
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return raw, "", ""
	}
	var tags struct {
		Type    string `json:"type"`
		Subtype string `json:"subtype"`
	}
	if err := json.Unmarshal(data, &tags); err != nil {
		return json.RawMessage(data), "", ""
	}
	return json.RawMessage(data), tags.Type, tags.Subtype
}
