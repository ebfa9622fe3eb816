// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// ATTACHMENT TYPE
// =============================================================================

// Attachment is a file payload attached to a user message.
//
// ContentRef is a transient client-side handle (inline encoded payload or a
// local object reference). It is never assumed durable across reloads for
// guest sessions.
type Attachment struct {
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	ContentRef string `json:"content_ref"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a session.
//
// An assistant message is created "open" and accumulates streamed chunks in
// an internal buffer until it is closed. All other messages are immutable
// once appended.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Content
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// Streaming state (not persisted)
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	open bool
	buf  strings.Builder
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a new user message with optional attachments.
func NewUserMessage(content string, attachments []Attachment) *Message {
	msg := NewMessage(RoleUser, content)
	msg.Attachments = attachments
	return msg
}

// NewAssistantMessage creates a new open assistant message ready to receive
// streamed chunks.
func NewAssistantMessage() *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
		open:      true,
	}
}

// NewClosedAssistantMessage creates an assistant message with fixed content
// that accepts no further chunks. Used for the fallback error text appended
// after a mid-stream failure.
func NewClosedAssistantMessage(content string) *Message {
	return NewMessage(RoleAssistant, content)
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// IsOpen reports whether the message is still receiving stream chunks.
func (m *Message) IsOpen() bool {
	return m.open
}

// AppendChunk appends a streamed text fragment to an open message.
// Chunks applied to a closed message are ignored.
func (m *Message) AppendChunk(chunk string) {
	if m.open {
		m.buf.WriteString(chunk)
	}
}

// Close finalizes an open message, merging the buffered stream content into
// Content. Closing an already closed message is a no-op.
func (m *Message) Close() {
	if !m.open {
		return
	}
	m.Content = m.buf.String()
	m.buf.Reset()
	m.open = false
}

// GetDisplayContent returns the content to display (streaming or final).
func (m *Message) GetDisplayContent() string {
	if m.open {
		return m.buf.String()
	}
	return m.Content
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.buf.Len() == 0
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := m.GetDisplayContent()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen]) + "..."
}
