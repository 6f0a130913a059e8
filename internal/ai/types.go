// Package ai provides conversation session management for the chat widget.
package ai

import "strings"

// Role identifies the author of a Turn
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// InlineData is binary content carried inside a Turn. Data is base64 encoded.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Part is one content fragment of a Turn: either plain text or inline data
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// TextPart returns a Part holding plain text
func TextPart(text string) Part {
	return Part{Text: text}
}

// DataPart returns a Part holding base64 encoded inline data
func DataPart(mimeType string, data string) Part {
	return Part{InlineData: &InlineData{MIMEType: mimeType, Data: data}}
}

// IsText reports whether the part carries text rather than inline data
func (p Part) IsText() bool {
	return p.InlineData == nil
}

// Turn is one message unit of the exchange sent to the remote API. Parts is never empty.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewUserTurn builds a user turn from text and an optional inline attachment. The text part comes first and is
// omitted when empty.
func NewUserTurn(text string, attachment *InlineData) Turn {
	parts := []Part{}
	if text != "" {
		parts = append(parts, TextPart(text))
	}
	if attachment != nil {
		parts = append(parts, DataPart(attachment.MIMEType, attachment.Data))
	}
	return Turn{Role: RoleUser, Parts: parts}
}

// NewModelTurn builds a model turn holding a single text part
func NewModelTurn(text string) Turn {
	return Turn{Role: RoleModel, Parts: []Part{TextPart(text)}}
}

// Text concatenates the text parts of the turn
func (t Turn) Text() string {
	var sb strings.Builder
	for _, p := range t.Parts {
		if p.IsText() {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// clone returns a deep copy so callers can't mutate session-owned history
func (t Turn) clone() Turn {
	parts := make([]Part, len(t.Parts))
	for i, p := range t.Parts {
		parts[i] = p
		if p.InlineData != nil {
			d := *p.InlineData
			parts[i].InlineData = &d
		}
	}
	return Turn{Role: t.Role, Parts: parts}
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.clone()
	}
	return out
}
