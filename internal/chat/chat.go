package chat

import (
	"encoding/base64"
	"strings"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// DefaultChatName is the display name given to a chat before its first message.
const DefaultChatName = "New Chat"

// InlineData is a binary attachment embedded in a part as base64 text.
type InlineData struct {
	// MIMEType is the declared media type of the attachment
	MIMEType string `json:"mime_type"`

	// Data is the base64-encoded attachment payload
	Data string `json:"data"`
}

// Part is one piece of a turn's content: text, or an inline attachment.
// Exactly one of the fields is set.
type Part struct {
	Text   string      `json:"text,omitempty"`
	Inline *InlineData `json:"inline_data,omitempty"`
}

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{Text: text}
}

// NewAttachmentPart creates an inline attachment part from raw bytes.
func NewAttachmentPart(mimeType string, data []byte) Part {
	return Part{Inline: &InlineData{
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}}
}

// IsAttachment reports whether the part carries inline binary data.
func (p Part) IsAttachment() bool {
	return p.Inline != nil
}

// Turn is one message exchange unit, authored by the user or the model.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewUserTurn builds a user turn from optional text followed by attachment parts.
// Blank or whitespace-only text yields an attachment-only turn.
func NewUserTurn(text string, attachments []Part) Turn {
	parts := make([]Part, 0, len(attachments)+1)
	if strings.TrimSpace(text) != "" {
		parts = append(parts, NewTextPart(text))
	}
	parts = append(parts, attachments...)
	return Turn{Role: RoleUser, Parts: parts}
}

// NewModelTurn builds a model turn with a single text part.
func NewModelTurn(text string) Turn {
	return Turn{Role: RoleModel, Parts: []Part{NewTextPart(text)}}
}

// Text returns the concatenated text content of the turn.
func (t Turn) Text() string {
	out := ""
	for _, p := range t.Parts {
		out += p.Text
	}
	return out
}

// HasText reports whether any part carries non-empty text.
func (t Turn) HasText() bool {
	for _, p := range t.Parts {
		if p.Text != "" {
			return true
		}
	}
	return false
}

// Chat represents a single conversation thread.
type Chat struct {
	// ID is a ULID that uniquely identifies this chat
	ID string `json:"id"`

	// Name is the mutable display label
	Name string `json:"name"`

	// History is the ordered sequence of turns (insertion order, never reordered)
	History []Turn `json:"history"`

	// ProjectID is a weak reference to the owning project ("" = uncategorized)
	ProjectID string `json:"project_id,omitempty"`

	// CreatedAt is the Unix timestamp when the chat was created
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp when the chat was last modified
	UpdatedAt int64 `json:"updated_at"`
}

// Priority ranks a brainstormed feature.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Feature is a single AI-brainstormed feature suggestion for a project.
type Feature struct {
	Text     string   `json:"text"`
	IsMVP    bool     `json:"is_mvp"`
	Priority Priority `json:"priority"`
}

// UIComponent is a saved AI-generated UI component artifact.
type UIComponent struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	HTML   string `json:"html"`
	CSS    string `json:"css"`
}

// Technology is one recommended stack entry in a project analysis.
type Technology struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Competitor is one competitor entry in a project analysis.
type Competitor struct {
	Name          string   `json:"name"`
	Inspirations  []string `json:"inspirations"`
	Opportunities []string `json:"opportunities"`
}

// Analysis is the AI-generated tech-stack and competitor blueprint for a project.
type Analysis struct {
	Technologies []Technology `json:"technologies"`
	UIUXStrategy string       `json:"uiux_strategy"`
	Competitors  []Competitor `json:"competitor_analysis"`
}

// Project is an organizational bucket grouping chats that share instructions
// and context. The annotation fields (ProblemStatement, Features, Components,
// Analysis) are AI-assisted layers on the same entity.
type Project struct {
	// ID is a ULID that uniquely identifies this project
	ID string `json:"id"`

	// Name is the mutable display label
	Name string `json:"name"`

	// Instructions is free text injected into every member chat's system prompt
	Instructions string `json:"instructions,omitempty"`

	ProblemStatement string        `json:"problem_statement,omitempty"`
	Features         []Feature     `json:"features,omitempty"`
	Components       []UIComponent `json:"components,omitempty"`
	Analysis         *Analysis     `json:"analysis,omitempty"`

	// CreatedAt is the Unix timestamp when the project was created
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp when the project was last modified
	UpdatedAt int64 `json:"updated_at"`
}
