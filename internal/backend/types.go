// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"time"

	"github.com/jeranaias/weho-chat/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// TurnMessage is one prior message in a chat submission.
type TurnMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a chat turn submission. Guests submit with
// IsGuest set and no user ID.
type ChatRequest struct {
	Query     string        `json:"query"`
	ThreadID  string        `json:"thread_id"`
	Language  string        `json:"language"`
	SessionID string        `json:"session_id"`
	IsGuest   bool          `json:"is_guest"`
	UserID    string        `json:"user_id,omitempty"`
	Messages  []TurnMessage `json:"messages,omitempty"`
}

// sessionSummary is the wire form of a session listing entry. Timestamps
// arrive as strings in whatever layout the backend emits.
type sessionSummary struct {
	SessionID  string `json:"session_id"`
	LastActive string `json:"last_active"`
	Preview    string `json:"preview"`
	Title      string `json:"title,omitempty"`
}

// HistoryMessage is one stored message returned by the history endpoint.
type HistoryMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// SessionMetadata carries the user-set title for a session.
type SessionMetadata struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// RenameRequest is the body of a session rename.
type RenameRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// timeLayouts are tried in order when parsing backend timestamps. The
// backend omits the zone on some fields.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a backend timestamp leniently. Unparseable values yield
// the zero time rather than an error; listing order does not depend on it.
func ParseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// toSummary converts a wire summary to the domain type.
func (s sessionSummary) toSummary() model.SessionSummary {
	return model.SessionSummary{
		SessionID:    s.SessionID,
		LastActiveAt: ParseTime(s.LastActive),
		Preview:      s.Preview,
		Title:        s.Title,
	}
}

// ToMessage converts a stored history message to the domain type. Unknown
// roles map to assistant so the transcript stays renderable.
func (m HistoryMessage) ToMessage() *model.Message {
	role := model.RoleAssistant
	if m.Role == string(model.RoleUser) {
		role = model.RoleUser
	}
	msg := model.NewMessage(role, m.Content)
	if t := ParseTime(m.CreatedAt); !t.IsZero() {
		msg.CreatedAt = t
	}
	return msg
}
