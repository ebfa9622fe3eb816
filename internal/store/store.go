// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/weho-chat/internal/model"
)

// =============================================================================
// EXCHANGE STATE
// =============================================================================

// Phase is the per-session exchange phase, carried as data rather than
// inferred from scanning the message list for a mutable tail.
type Phase int

const (
	// PhaseIdle means no exchange is in flight.
	PhaseIdle Phase = iota

	// PhaseAwaitingResponse means a user message was appended and the
	// assistant message has not begun yet.
	PhaseAwaitingResponse

	// PhaseStreaming means an open assistant message is receiving chunks.
	PhaseStreaming
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingResponse:
		return "awaiting_response"
	case PhaseStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// exchangeState tracks the in-flight exchange for one session.
type exchangeState struct {
	phase         Phase
	openMessageID string // set only while phase == PhaseStreaming
}

// ErrExchangeInFlight is returned by BeginAssistantMessage when the session
// already has an open assistant message.
var ErrExchangeInFlight = errors.New("session already has an open assistant message")

// =============================================================================
// SESSION STORE
// =============================================================================

// Store is the in-memory collection of chat sessions. Insertion order is
// recency order (head = most recent) for sidebar display, and stays stable
// across reconciliation.
type Store struct {
	mu       sync.Mutex
	sessions []*model.Session
	active   string
	origin   model.Origin
	states   map[string]*exchangeState
}

// New creates an empty store whose new sessions carry the given origin.
func New(origin model.Origin) *Store {
	return &Store{
		origin: origin,
		states: make(map[string]*exchangeState),
	}
}

// SetOrigin changes the origin applied to sessions created from now on.
// Called on mode transitions (login, logout).
func (s *Store) SetOrigin(origin model.Origin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin = origin
}

// Origin returns the origin applied to new sessions.
func (s *Store) Origin() model.Origin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// CreateSession inserts a new empty session at the head of the list, marks
// it active, and returns its ID. Always succeeds.
func (s *Store) CreateSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSessionLocked()
}

func (s *Store) createSessionLocked() string {
	sess := model.NewSession(s.origin)
	s.sessions = append([]*model.Session{sess}, s.sessions...)
	s.active = sess.ID
	s.states[sess.ID] = &exchangeState{}
	return sess.ID
}

// SelectSession sets the active session. A missing ID is a silent no-op;
// callers must ensure existence.
func (s *Store) SelectSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(id) != nil {
		s.active = id
	}
}

// DeleteSession removes a session from the list. If the deleted session was
// active, activation falls back to the new head of the list, or a fresh
// session is created if the list becomes empty. The removal is applied
// optimistically; any remote delete is the sync coordinator's concern.
// Returns false if the session was not present.
func (s *Store) DeleteSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, sess := range s.sessions {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	delete(s.states, id)

	if s.active == id {
		if len(s.sessions) > 0 {
			s.active = s.sessions[0].ID
		} else {
			s.createSessionLocked()
		}
	}
	return true
}

// RenameSession sets a session's title. Missing IDs are a silent no-op;
// the local change is optimistic relative to any remote rename.
func (s *Store) RenameSession(id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.findLocked(id); sess != nil {
		sess.Title = title
	}
}

// ReplaceAll swaps the session list wholesale with the reconciled set and
// resets all exchange state. Used by the sync coordinator after login/boot
// reconciliation and on guest-mode entry. If the set is empty, a fresh
// session is created. The first session becomes active.
func (s *Store) ReplaceAll(sessions []*model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = sessions
	s.states = make(map[string]*exchangeState, len(sessions))
	for _, sess := range sessions {
		s.states[sess.ID] = &exchangeState{}
	}
	if len(s.sessions) == 0 {
		s.createSessionLocked()
		return
	}
	s.active = s.sessions[0].ID
}

// =============================================================================
// MESSAGE MUTATION
// =============================================================================

// AppendMessage appends a message to a session. Appending the session's
// first message derives the session title from the message content. A user
// message moves the session into AwaitingResponse.
func (s *Store) AppendMessage(sessionID string, msg *model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(sessionID)
	if sess == nil {
		return
	}

	first := sess.IsEmpty()
	sess.AddMessage(msg)
	if first {
		sess.Title = model.TitleFromContent(msg.GetDisplayContent())
	}

	if msg.Role == model.RoleUser {
		if st := s.states[sessionID]; st != nil {
			st.phase = PhaseAwaitingResponse
		}
	}
}

// BeginAssistantMessage appends a new empty open assistant message and
// returns its ID for subsequent chunk application. It rejects the call when
// the session already has an open assistant message; this defensive guard
// holds independent of caller discipline.
func (s *Store) BeginAssistantMessage(sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(sessionID)
	if sess == nil {
		return "", errors.New("session not found")
	}
	st := s.states[sessionID]
	if st.phase == PhaseStreaming {
		return "", ErrExchangeInFlight
	}

	msg := model.NewAssistantMessage()
	sess.AddMessage(msg)
	st.phase = PhaseStreaming
	st.openMessageID = msg.ID
	return msg.ID, nil
}

// ApplyChunk appends a text chunk to the content buffer of the open
// assistant message. Chunks targeting any other message are dropped and
// logged: they belong to a session that was deleted or an exchange that was
// superseded.
func (s *Store) ApplyChunk(sessionID, messageID, chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(sessionID)
	if sess == nil {
		log.Printf("store: dropped chunk for deleted session %s", sessionID)
		return
	}
	st := s.states[sessionID]
	if st.phase != PhaseStreaming || st.openMessageID != messageID {
		log.Printf("store: dropped stale chunk for session %s message %s", sessionID, messageID)
		return
	}

	if msg := sess.MessageByID(messageID); msg != nil {
		msg.AppendChunk(chunk)
		sess.UpdatedAt = time.Now()
	}
}

// CloseAssistantMessage marks the open assistant message terminal and
// returns the session to Idle. No further chunks are accepted. Closing a
// message that is not the open one is a no-op.
func (s *Store) CloseAssistantMessage(sessionID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(sessionID)
	if sess == nil {
		return
	}
	st := s.states[sessionID]
	if st.phase != PhaseStreaming || st.openMessageID != messageID {
		return
	}

	if msg := sess.MessageByID(messageID); msg != nil {
		msg.Close()
	}
	st.phase = PhaseIdle
	st.openMessageID = ""
}

// AbortExchange returns a session in AwaitingResponse to Idle. Used when a
// submission fails before any assistant message was created. A session with
// an open assistant message is left alone; close it instead.
func (s *Store) AbortExchange(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.states[sessionID]
	if st != nil && st.phase == PhaseAwaitingResponse {
		st.phase = PhaseIdle
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// Busy reports whether a session has an exchange in flight. The UI uses
// this to reject duplicate submissions.
func (s *Store) Busy(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[sessionID]
	return st != nil && st.phase != PhaseIdle
}

// PhaseOf returns the exchange phase of a session.
func (s *Store) PhaseOf(sessionID string) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.states[sessionID]; st != nil {
		return st.phase
	}
	return PhaseIdle
}

// ActiveID returns the ID of the active session, or "" if none.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Get returns the session with the given ID, or nil.
func (s *Store) Get(id string) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(id)
}

// Sessions returns the session list in display order (head = most recent).
// The slice is a copy; the sessions are shared.
func (s *Store) Sessions() []*model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// NonEmptySessions returns the sessions with at least one message, in
// display order. Empty drafts are never listed in visible history.
func (s *Store) NonEmptySessions() []*model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Session
	for _, sess := range s.sessions {
		if !sess.IsEmpty() {
			out = append(out, sess)
		}
	}
	return out
}

// Len returns the number of sessions, including the empty draft.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// MessageHistory returns a deep snapshot of a session's messages, suitable
// for building a backend request while the store keeps mutating.
func (s *Store) MessageHistory(sessionID string) []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(sessionID)
	if sess == nil {
		return nil
	}
	return sess.Clone().Messages
}

func (s *Store) findLocked(id string) *model.Session {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}
