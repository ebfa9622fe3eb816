// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// SESSION SUMMARY TYPE
// =============================================================================

// SessionSummary is the server's lightweight view of a session, used to
// reconcile the backend session list against local state. The unique key is
// SessionID.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	LastActiveAt time.Time `json:"last_active"`
	Preview      string    `json:"preview"`
	Title        string    `json:"title,omitempty"`
}

// DisplayTitle returns the best available label for the session: the title
// when the server has one, otherwise the preview, otherwise a default.
func (s SessionSummary) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	if s.Preview != "" {
		return s.Preview
	}
	return "New Chat"
}
