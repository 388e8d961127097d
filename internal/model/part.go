// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "encoding/json"

// =============================================================================
// MESSAGE PARTS
// =============================================================================

// PartType discriminates the typed fragments a message is composed of.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
	PartFile       PartType = "file"
	PartCard       PartType = "card"
)

// Part is one ordered fragment of a message. A single message may mix
// narration with structured payloads; exactly one payload field is set,
// matching Type.
type Part struct {
	Type PartType `json:"type"`

	Text       string          `json:"text,omitempty"`
	ToolCall   *ToolCall       `json:"toolCall,omitempty"`
	ToolResult *ToolResult     `json:"toolResult,omitempty"`
	File       *Attachment     `json:"file,omitempty"`
	Card       json.RawMessage `json:"card,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// FilePart builds a file part from an attachment descriptor.
func FilePart(att Attachment) Part {
	return Part{Type: PartFile, File: &att}
}

// JoinText concatenates the text of all text parts, used when a message
// carries no flat Content field.
func JoinText(parts []Part) string {
	var out string
	for _, p := range parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}
