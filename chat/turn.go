// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Part types inside structured content.
const (
	PartKindText       = "text"
	PartKindToolCall   = "tool-call"
	PartKindToolResult = "tool-result"
)

// Part is one element of structured turn content.
type Part struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     any             `json:"result,omitempty"`
}

// Content is either plain text or an ordered list of parts. It
// encodes as a JSON string when Parts is nil and as an array
// otherwise.
type Content struct {
	Text  string
	Parts []Part
}

// TextContent returns plain-text content.
func TextContent(text string) Content {
	return Content{Text: text}
}

// PartsContent returns structured content. A nil parts list still
// encodes as an array.
func PartsContent(parts ...Part) Content {
	if parts == nil {
		parts = []Part{}
	}
	return Content{Parts: parts}
}

// Structured reports whether the content is a part list.
func (c Content) Structured() bool {
	return c.Parts != nil
}

// String flattens the content for display: text parts verbatim and
// tool calls as "[Tool: name]".
func (c Content) String() string {
	if !c.Structured() {
		return c.Text
	}
	var builder strings.Builder
	for _, part := range c.Parts {
		switch {
		case part.Type == PartKindText:
			builder.WriteString(part.Text)
		case part.Type == PartKindToolCall && part.ToolName != "":
			builder.WriteString("[Tool: " + part.ToolName + "]")
		}
	}
	return builder.String()
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Structured() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*c = Content{Text: text}
		return nil
	case len(data) > 0 && data[0] == '[':
		parts := []Part{}
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = Content{Parts: parts}
		return nil
	}
	return fmt.Errorf("turn content must be a string or an array, got %.20s", data)
}

// Turn is one message of the conversation.
type Turn struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// UserTurn returns a plain-text user turn.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Content: TextContent(text)}
}

// keyPrefixLength is how much of the content a message key includes.
const keyPrefixLength = 50

// MessageKey identifies a turn for display grouping. Tool-result turns
// are keyed by their tool call id; every other turn by role, content
// length and the first characters of its content.
func MessageKey(turn Turn) string {
	if turn.Role == RoleTool && len(turn.Content.Parts) > 0 && turn.Content.Parts[0].ToolCallID != "" {
		return "tool_" + turn.Content.Parts[0].ToolCallID
	}
	text := []rune(turn.Content.String())
	prefix := text[:min(len(text), keyPrefixLength)]
	return string(turn.Role) + "_" + strconv.Itoa(len(text)) + "_" + string(prefix)
}

// GroupChunks splits turns into runs of consecutive turns sharing a
// MessageKey, so output streamed as several fragments renders as one
// block.
func GroupChunks(turns []Turn) [][]Turn {
	var groups [][]Turn
	lastKey := ""
	for index, turn := range turns {
		key := MessageKey(turn)
		if index == 0 || key != lastKey {
			groups = append(groups, []Turn{turn})
			lastKey = key
			continue
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], turn)
	}
	return groups
}

// DisplayContent returns the text shown for a group from GroupChunks.
// Assistant groups show their first turn via AssistantText; other
// groups show every turn's content concatenated.
func DisplayContent(group []Turn) string {
	if len(group) == 0 {
		return ""
	}
	if group[0].Role == RoleAssistant {
		return AssistantText(group[0])
	}
	var builder strings.Builder
	for _, turn := range group {
		builder.WriteString(turn.Content.String())
	}
	return builder.String()
}

// AssistantText renders an assistant turn: its text, followed by
// "Calling: <tool>" for the first tool call. A turn whose only
// content is a thinkTool call shows the reflection argument instead.
func AssistantText(turn Turn) string {
	if turn.Role != RoleAssistant || !turn.Content.Structured() {
		return turn.Content.String()
	}

	var text strings.Builder
	var firstTool *Part
	for index := range turn.Content.Parts {
		part := &turn.Content.Parts[index]
		switch part.Type {
		case PartKindText:
			text.WriteString(part.Text)
		case PartKindToolCall:
			if firstTool == nil {
				firstTool = part
			}
		}
	}

	if text.Len() == 0 && firstTool != nil && firstTool.ToolName == "thinkTool" {
		var args struct {
			Reflection string `json:"reflection"`
		}
		if json.Unmarshal(firstTool.Args, &args) == nil && args.Reflection != "" {
			return args.Reflection
		}
	}
	if firstTool != nil && firstTool.ToolName != "" {
		text.WriteString("\nCalling: " + firstTool.ToolName)
	}
	return text.String()
}
