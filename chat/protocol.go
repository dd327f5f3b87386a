// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
)

// Backend frame types.
const (
	TypeRecurringConnection = "recurring_connection"
	TypeQuery               = "query"

	TypeUserAssigned     = "user_assigned"
	TypeResponse         = "response"
	TypeError            = "error"
	TypeAskUser          = "ask_user"
	TypeToolFunctionCall = "tool_function_call"
)

// StreamAISDK marks response frames that carry one ai-sdk stream part.
const StreamAISDK = "ai-sdk"

// Stream part types. Unknown part types are ignored.
const (
	PartTextDelta  = "text-delta"
	PartText       = "text"
	PartToolCall   = "tool-call"
	PartFinish     = "finish"
	PartFinishStep = "finish-step"
	PartError      = "error"
)

// Frame is an inbound backend frame. Only the fields of the frame's
// type are set.
type Frame struct {
	Type string `json:"type"`

	// SocketID is set on user_assigned.
	SocketID string `json:"socketId,omitempty"`

	// Message is set on error.
	Message string `json:"message,omitempty"`

	// Data is set on response.
	Data *StreamPart `json:"data,omitempty"`

	// FunctionName, ToolCallID and Args are set on the legacy
	// tool_function_call request.
	FunctionName string          `json:"function_name,omitempty"`
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	Args         json.RawMessage `json:"args,omitempty"`
}

// StreamPart is the payload of a response frame.
type StreamPart struct {
	Stream   string `json:"stream"`
	PartType string `json:"partType"`

	// Text is a pointer so a text part with no text field can be told
	// apart from one carrying "".
	Text *string `json:"text,omitempty"`

	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`

	// Error is the message of an error part.
	Error string `json:"error,omitempty"`
}

// SessionState is the opaque continuation token the backend accepts
// in place of the full history: every turn so far plus the logs and
// architecture the conversation started with.
type SessionState struct {
	Messages     []Turn `json:"messages"`
	Logs         string `json:"logs"`
	Architecture string `json:"architecture"`
}

type handshakeFrame struct {
	Type      string `json:"type"`
	ServiceID int64  `json:"serviceId"`
	AuthKey   string `json:"authKey,omitempty"`
}

type queryFrame struct {
	Type        string        `json:"type"`
	ServiceID   int64         `json:"serviceId"`
	AuthKey     string        `json:"authKey,omitempty"`
	UserQuery   userQuery     `json:"userQuery"`
	PlanningDoc string        `json:"planningDoc"`
	GraphState  *SessionState `json:"graphState,omitempty"`
}

type userQuery struct {
	Messages     []Turn `json:"messages"`
	Architecture string `json:"architecture"`
	Logs         string `json:"logs"`
	PlanningDoc  string `json:"planningDoc"`
}
