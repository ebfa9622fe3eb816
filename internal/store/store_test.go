// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/jeranaias/weho-chat/internal/model"
)

// =============================================================================
// SESSION LIFECYCLE TESTS
// =============================================================================

func TestCreateSessionBecomesActive(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()

	if st.ActiveID() != id {
		t.Errorf("ActiveID() = %q, want %q", st.ActiveID(), id)
	}
	if st.Len() != 1 {
		t.Errorf("Len() = %d, want 1", st.Len())
	}

	second := st.CreateSession()
	if st.ActiveID() != second {
		t.Error("newest session should become active")
	}
	if st.Sessions()[0].ID != second {
		t.Error("newest session should be at the head of the list")
	}
}

func TestSelectSessionUnknownIDIsNoOp(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()

	st.SelectSession("nope")
	if st.ActiveID() != id {
		t.Errorf("ActiveID() = %q after selecting unknown ID, want %q", st.ActiveID(), id)
	}
}

func TestDeleteActiveFallsBackToHead(t *testing.T) {
	st := New(model.OriginGuest)
	older := st.CreateSession()
	newer := st.CreateSession()

	if !st.DeleteSession(newer) {
		t.Fatal("DeleteSession should report removal")
	}
	if st.ActiveID() != older {
		t.Errorf("ActiveID() = %q, want fallback to %q", st.ActiveID(), older)
	}
}

func TestDeleteLastSessionCreatesFreshOne(t *testing.T) {
	st := New(model.OriginGuest)
	only := st.CreateSession()

	st.DeleteSession(only)
	if st.Len() != 1 {
		t.Fatalf("Len() = %d, want a fresh replacement session", st.Len())
	}
	fresh := st.Sessions()[0]
	if fresh.ID == only {
		t.Error("replacement session should have a new ID")
	}
	if !fresh.IsEmpty() {
		t.Error("replacement session should be empty")
	}
	if st.ActiveID() != fresh.ID {
		t.Error("replacement session should be active")
	}
}

func TestDeleteUnknownSession(t *testing.T) {
	st := New(model.OriginGuest)
	st.CreateSession()
	if st.DeleteSession("missing") {
		t.Error("deleting an unknown session should report false")
	}
}

func TestReplaceAllResetsState(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()
	st.AppendMessage(id, model.NewUserMessage("hi", nil))

	replacement := model.NewSession(model.OriginAuthenticated)
	st.ReplaceAll([]*model.Session{replacement})

	if st.Len() != 1 || st.ActiveID() != replacement.ID {
		t.Error("ReplaceAll should swap the list and activate the head")
	}
	if st.Busy(id) {
		t.Error("exchange state should not survive ReplaceAll")
	}
}

func TestReplaceAllEmptyCreatesFreshSession(t *testing.T) {
	st := New(model.OriginGuest)
	st.ReplaceAll(nil)
	if st.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", st.Len())
	}
	if st.ActiveID() == "" {
		t.Error("a fresh session should be active")
	}
}

// =============================================================================
// TITLE DERIVATION TESTS
// =============================================================================

func TestFirstMessageDerivesTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short message", "Plan my trip", "Plan my trip"},
		{"exactly thirty runes", strings.Repeat("x", 30), strings.Repeat("x", 30)},
		{"long message truncated", strings.Repeat("x", 45), strings.Repeat("x", 30) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := New(model.OriginGuest)
			id := st.CreateSession()
			st.AppendMessage(id, model.NewUserMessage(tt.content, nil))

			if got := st.Get(id).Title; got != tt.want {
				t.Errorf("title = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecondMessageKeepsTitle(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()
	st.AppendMessage(id, model.NewUserMessage("first", nil))
	st.AppendMessage(id, model.NewUserMessage("second", nil))

	if got := st.Get(id).Title; got != "first" {
		t.Errorf("title = %q, want %q", got, "first")
	}
}

func TestRenameSession(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()
	st.RenameSession(id, "renamed")
	if got := st.Get(id).Title; got != "renamed" {
		t.Errorf("title = %q, want %q", got, "renamed")
	}

	// Unknown ID is a silent no-op
	st.RenameSession("missing", "whatever")
}

// =============================================================================
// EXCHANGE STATE TESTS
// =============================================================================

func TestExchangePhaseTransitions(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()

	if st.PhaseOf(id) != PhaseIdle {
		t.Fatal("fresh session should be idle")
	}

	st.AppendMessage(id, model.NewUserMessage("question", nil))
	if st.PhaseOf(id) != PhaseAwaitingResponse {
		t.Errorf("phase = %v after user message, want awaiting_response", st.PhaseOf(id))
	}
	if !st.Busy(id) {
		t.Error("session awaiting a response should be busy")
	}

	msgID, err := st.BeginAssistantMessage(id)
	if err != nil {
		t.Fatalf("BeginAssistantMessage: %v", err)
	}
	if st.PhaseOf(id) != PhaseStreaming {
		t.Errorf("phase = %v after begin, want streaming", st.PhaseOf(id))
	}

	st.CloseAssistantMessage(id, msgID)
	if st.PhaseOf(id) != PhaseIdle {
		t.Errorf("phase = %v after close, want idle", st.PhaseOf(id))
	}
	if st.Busy(id) {
		t.Error("idle session should not be busy")
	}
}

func TestBeginWhileStreamingRejected(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()

	if _, err := st.BeginAssistantMessage(id); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	if _, err := st.BeginAssistantMessage(id); !errors.Is(err, ErrExchangeInFlight) {
		t.Errorf("second begin error = %v, want ErrExchangeInFlight", err)
	}
}

func TestAbortExchange(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()
	st.AppendMessage(id, model.NewUserMessage("question", nil))

	st.AbortExchange(id)
	if st.PhaseOf(id) != PhaseIdle {
		t.Error("AbortExchange should return awaiting session to idle")
	}

	// AbortExchange never touches a streaming session
	msgID, _ := st.BeginAssistantMessage(id)
	st.AbortExchange(id)
	if st.PhaseOf(id) != PhaseStreaming {
		t.Error("AbortExchange should leave a streaming session alone")
	}
	st.CloseAssistantMessage(id, msgID)
}

// =============================================================================
// CHUNK APPLICATION TESTS
// =============================================================================

func TestChunksConcatenateInOrder(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()
	msgID, _ := st.BeginAssistantMessage(id)

	for _, chunk := range []string{"Hel", "lo, ", "world"} {
		st.ApplyChunk(id, msgID, chunk)
	}
	st.CloseAssistantMessage(id, msgID)

	msg := st.Get(id).MessageByID(msgID)
	if msg.Content != "Hello, world" {
		t.Errorf("content = %q, want %q", msg.Content, "Hello, world")
	}
	if msg.IsOpen() {
		t.Error("message should be closed")
	}
}

func TestStaleChunksDropped(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()
	msgID, _ := st.BeginAssistantMessage(id)
	st.ApplyChunk(id, msgID, "kept")
	st.CloseAssistantMessage(id, msgID)

	// Chunk for a closed exchange
	st.ApplyChunk(id, msgID, " dropped")
	if got := st.Get(id).MessageByID(msgID).Content; got != "kept" {
		t.Errorf("content = %q, stale chunk was applied", got)
	}

	// Chunk for a message that is not the open one
	newID, _ := st.BeginAssistantMessage(id)
	st.ApplyChunk(id, msgID, "also dropped")
	if got := st.Get(id).MessageByID(msgID).Content; got != "kept" {
		t.Errorf("content = %q, chunk for superseded message was applied", got)
	}
	st.CloseAssistantMessage(id, newID)
}

func TestChunkForDeletedSessionDropped(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()
	msgID, _ := st.BeginAssistantMessage(id)

	st.DeleteSession(id)
	// Must not panic, must not resurrect the session
	st.ApplyChunk(id, msgID, "late chunk")
	if st.Get(id) != nil {
		t.Error("deleted session came back")
	}
}

func TestCloseWrongMessageIsNoOp(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()
	msgID, _ := st.BeginAssistantMessage(id)

	st.CloseAssistantMessage(id, "other")
	if st.PhaseOf(id) != PhaseStreaming {
		t.Error("closing a non-open message should not end the exchange")
	}
	st.CloseAssistantMessage(id, msgID)
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestNonEmptySessions(t *testing.T) {
	st := New(model.OriginGuest)
	st.CreateSession() // empty draft
	withContent := st.CreateSession()
	st.AppendMessage(withContent, model.NewUserMessage("hi", nil))

	visible := st.NonEmptySessions()
	if len(visible) != 1 || visible[0].ID != withContent {
		t.Errorf("NonEmptySessions() returned %d sessions, want only the one with content", len(visible))
	}
}

func TestMessageHistoryIsSnapshot(t *testing.T) {
	st := New(model.OriginGuest)
	id := st.CreateSession()
	st.AppendMessage(id, model.NewUserMessage("hi", nil))
	msgID, _ := st.BeginAssistantMessage(id)
	st.ApplyChunk(id, msgID, "so far")

	snap := st.MessageHistory(id)
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d messages, want 2", len(snap))
	}
	if snap[1].Content != "so far" {
		t.Errorf("snapshot open message content = %q, want %q", snap[1].Content, "so far")
	}

	st.ApplyChunk(id, msgID, " and more")
	if snap[1].Content != "so far" {
		t.Error("snapshot should not observe later chunks")
	}
	st.CloseAssistantMessage(id, msgID)
}
