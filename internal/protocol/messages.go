// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

import "encoding/json"

// Inbound message type tags.
const (
	TypeSystem         = "system"
	TypeAssistant      = "assistant"
	TypeStreamEvent    = "stream_event"
	TypeResult         = "result"
	TypeControlRequest = "control_request"
	TypeToolProgress   = "tool_progress"
	TypeKeepAlive      = "keep_alive"
)

// Outbound message type tags.
const (
	TypeUser            = "user"
	TypeControlResponse = "control_response"
	TypeInterrupt       = "interrupt"
)

// ControlRequestSubtype values.
const (
	ControlSubtypeCanUseTool = "can_use_tool"
	ControlSubtypeInit       = "init"
)

// Usage carries token counts from a result message.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolUseRequest is the payload of a can_use_tool control_request.
type ToolUseRequest struct {
	Subtype   string                 `json:"subtype"`
	ToolName  string                 `json:"tool_name"`
	ToolInput map[string]interface{} `json:"tool_input"`
}

// InboundMessage is the generic envelope for every frame the agent sends.
// Only the fields the core interprets are named; everything else is kept
// in Raw so it can be forwarded verbatim (forward-compatible passthrough).
type InboundMessage struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Model     string          `json:"model,omitempty"`

	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
	Usage        *Usage  `json:"usage,omitempty"`

	RequestID string          `json:"request_id,omitempty"`
	Request   *ToolUseRequest `json:"request,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseInbound decodes one NDJSON line into an InboundMessage, retaining
// the original bytes in Raw for verbatim forwarding/storage.
func ParseInbound(line []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return InboundMessage{}, err
	}
	msg.Raw = append(json.RawMessage(nil), line...)
	return msg, nil
}

// IsSystemInit reports whether msg is a system/init frame or its
// control_request/init equivalent.
func (m InboundMessage) IsSystemInit() bool {
	if m.Type == TypeSystem && m.Subtype == "init" {
		return true
	}
	if m.Type == TypeControlRequest && m.Request != nil && m.Request.Subtype == ControlSubtypeInit {
		return true
	}
	return false
}

// IsCanUseTool reports whether msg is a can_use_tool control_request.
func (m InboundMessage) IsCanUseTool() bool {
	return m.Type == TypeControlRequest && m.Request != nil && m.Request.Subtype == ControlSubtypeCanUseTool
}

// UserMessage builds the outbound {type:"user", message:{...}} frame.
type UserMessage struct {
	Type    string         `json:"type"`
	Message userMessageBody `json:"message"`
}

type userMessageBody struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage builds the outbound user-turn frame.
func NewUserMessage(content string) UserMessage {
	return UserMessage{
		Type:    TypeUser,
		Message: userMessageBody{Role: "user", Content: content},
	}
}

// ControlResponse builds the outbound control_response frame answering a
// can_use_tool control_request.
type ControlResponse struct {
	Type     string              `json:"type"`
	Response controlResponseBody `json:"response"`
}

type controlResponseBody struct {
	Subtype   string                 `json:"subtype"`
	RequestID string                 `json:"request_id"`
	Result    controlResponseResult  `json:"result"`
}

type controlResponseResult struct {
	Behavior     string                 `json:"behavior"`
	UpdatedInput map[string]interface{} `json:"updated_input,omitempty"`
}

// NewControlResponse builds the control_response frame for a permission
// decision.
func NewControlResponse(requestID, behavior string, updatedInput map[string]interface{}) ControlResponse {
	return ControlResponse{
		Type: TypeControlResponse,
		Response: controlResponseBody{
			Subtype:   "can_use_tool_result",
			RequestID: requestID,
			Result: controlResponseResult{
				Behavior:     behavior,
				UpdatedInput: updatedInput,
			},
		},
	}
}

// InterruptMessage builds the outbound {type:"interrupt"} frame.
type InterruptMessage struct {
	Type string `json:"type"`
}

// NewInterruptMessage builds the interrupt frame.
func NewInterruptMessage() InterruptMessage {
	return InterruptMessage{Type: TypeInterrupt}
}
