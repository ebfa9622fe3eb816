// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// TitleMaxLen is the maximum title length derived from a session's first
// message before truncation.
const TitleMaxLen = 30

// =============================================================================
// ORIGIN TYPE
// =============================================================================

// Origin records which mode a session was created in.
type Origin string

const (
	// OriginGuest marks sessions created without a logged-in user. Their
	// history lives only in local durable storage.
	OriginGuest Origin = "guest"

	// OriginAuthenticated marks sessions owned by the backend. The server
	// is authoritative for their listing metadata.
	OriginAuthenticated Origin = "authenticated"
)

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds one chat conversation thread with ordered messages.
//
// The ID is immutable once created: generated client-side for guest
// sessions, server-assigned for authenticated sessions.
type Session struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Origin    Origin    `json:"origin"`

	// Messages
	Messages []*Message `json:"messages"`
}

// NewSession creates a new empty session with a generated ID.
func NewSession(origin Origin) *Session {
	now := time.Now()
	return &Session{
		ID:        generateSessionID(),
		CreatedAt: now,
		UpdatedAt: now,
		Origin:    origin,
		Messages:  make([]*Message, 0),
	}
}

// NewSessionWithID creates a session with a server-assigned ID.
func NewSessionWithID(id string, origin Origin) *Session {
	sess := NewSession(origin)
	sess.ID = id
	return sess
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message to the session.
func (s *Session) AddMessage(msg *Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// LastMessage returns the most recent message, or nil if empty.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// MessageByID returns a message by its ID, or nil if not present.
func (s *Session) MessageByID(id string) *Message {
	for _, msg := range s.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// IsEmpty returns true if there are no messages. Empty sessions are never
// persisted and never listed in visible history.
func (s *Session) IsEmpty() bool {
	return len(s.Messages) == 0
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// GetTitle returns the session title or a default.
func (s *Session) GetTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "New Chat"
}

// TitleFromContent derives a session title from its first message content:
// the content itself when it fits, otherwise the first TitleMaxLen runes
// followed by an ellipsis.
func TitleFromContent(content string) string {
	runes := []rune(content)
	if len(runes) <= TitleMaxLen {
		return content
	}
	return string(runes[:TitleMaxLen]) + "..."
}

// Preview returns a short preview of the session's first user message.
func (s *Session) Preview() string {
	for _, msg := range s.Messages {
		if msg.Role == RoleUser && !msg.IsEmpty() {
			return msg.Preview(80)
		}
	}
	return ""
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a deep copy of the session. Open message buffers are not
// carried over; clones see the display content at the time of the copy.
func (s *Session) Clone() *Session {
	clone := &Session{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Origin:    s.Origin,
		Messages:  make([]*Message, len(s.Messages)),
	}
	for i, msg := range s.Messages {
		cp := &Message{
			ID:          msg.ID,
			Role:        msg.Role,
			CreatedAt:   msg.CreatedAt,
			Content:     msg.GetDisplayContent(),
			Attachments: append([]Attachment(nil), msg.Attachments...),
		}
		clone.Messages[i] = cp
	}
	return clone
}

// generateSessionID creates a collision-resistant short session ID.
func generateSessionID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "sess_" + hex.EncodeToString(bytes)
}
