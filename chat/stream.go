// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"strings"
)

// Outcome says what applying one stream part produced.
type Outcome int

const (
	// Pending: the part was absorbed (or ignored) and the response
	// unit is still open.
	Pending Outcome = iota

	// Finished: the unit closed and Step.Turn holds the assistant
	// turn.
	Finished

	// Failed: the backend reported an error. The unit's accumulated
	// state was discarded and Step.Error holds the message.
	Failed
)

// Step is the result of Assembler.Apply.
type Step struct {
	Outcome Outcome
	Turn    Turn
	Error   string

	// ToolCall is set when the part announced a tool call.
	ToolCall *Part
}

// Assembler folds the ai-sdk parts of one streamed response into
// assistant turns. The zero value is ready to use. It is not safe for
// concurrent use.
type Assembler struct {
	text  strings.Builder
	calls []Part
}

// Apply absorbs one part. Text deltas accumulate; a text part replaces
// the accumulated text; tool calls are collected in announcement
// order. finish and finish-step close the unit: with tool calls the
// turn's content is an optional text part followed by the calls, and
// without them it is the plain text. error drops the unit. Unknown
// part types are ignored.
func (a *Assembler) Apply(part StreamPart) Step {
	switch part.PartType {
	case PartTextDelta:
		if part.Text != nil {
			a.text.WriteString(*part.Text)
		}
	case PartText:
		if part.Text != nil {
			a.text.Reset()
			a.text.WriteString(*part.Text)
		}
	case PartToolCall:
		call := Part{
			Type:       PartKindToolCall,
			ToolCallID: part.ToolCallID,
			ToolName:   part.ToolName,
			Args:       part.Args,
		}
		a.calls = append(a.calls, call)
		return Step{Outcome: Pending, ToolCall: &call}
	case PartFinish, PartFinishStep:
		turn := a.turn()
		a.Reset()
		return Step{Outcome: Finished, Turn: turn}
	case PartError:
		a.Reset()
		message := part.Error
		if message == "" && part.Text != nil {
			message = *part.Text
		}
		return Step{Outcome: Failed, Error: message}
	}
	return Step{Outcome: Pending}
}

// Reset discards the open unit.
func (a *Assembler) Reset() {
	a.text.Reset()
	a.calls = nil
}

func (a *Assembler) turn() Turn {
	text := a.text.String()
	if len(a.calls) == 0 {
		return Turn{Role: RoleAssistant, Content: TextContent(text)}
	}
	parts := make([]Part, 0, len(a.calls)+1)
	if text != "" {
		parts = append(parts, Part{Type: PartKindText, Text: text})
	}
	parts = append(parts, a.calls...)
	return Turn{Role: RoleAssistant, Content: PartsContent(parts...)}
}
