// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jeranaias/weho-chat/internal/auth"
	"github.com/jeranaias/weho-chat/internal/backend"
	"github.com/jeranaias/weho-chat/internal/model"
	"github.com/jeranaias/weho-chat/internal/store"
)

// remoteCallTimeout bounds fire-and-forget remote mutations. The local
// change has already happened; this only limits how long the deferred
// outcome can stay pending.
const remoteCallTimeout = 15 * time.Second

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Backend is the slice of the backend client the coordinator consumes.
type Backend interface {
	ListSessions(ctx context.Context, userID string) ([]model.SessionSummary, error)
	SessionMessages(ctx context.Context, sessionID, userID string) ([]backend.HistoryMessage, error)
	SessionMetadata(ctx context.Context, sessionID, userID string) (backend.SessionMetadata, error)
	DeleteSession(ctx context.Context, sessionID, userID string) error
	RenameSession(ctx context.Context, sessionID, userID, title string) error
}

// GuestStore persists guest-mode sessions locally.
type GuestStore interface {
	Save(sessions []*model.Session) error
	Load() ([]*model.Session, error)
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator owns mode transitions and remote session mutations.
type Coordinator struct {
	store   *store.Store
	backend Backend
	auth    *auth.Manager
	guests  GuestStore
}

// NewCoordinator wires a coordinator to its collaborators.
func NewCoordinator(st *store.Store, be Backend, am *auth.Manager, guests GuestStore) *Coordinator {
	return &Coordinator{store: st, backend: be, auth: am, guests: guests}
}

// =============================================================================
// MODE TRANSITIONS
// =============================================================================

// EnterAuthenticatedMode switches the store to authenticated sessions and
// reconciles against the backend. Called on login and on app boot with a
// restored profile.
func (c *Coordinator) EnterAuthenticatedMode(ctx context.Context) error {
	c.store.SetOrigin(model.OriginAuthenticated)
	return c.Reconcile(ctx)
}

// EnterGuestMode discards authenticated sessions from memory and loads the
// guest-persisted list, or creates a fresh empty session if none exists.
// Called on logout and on boot without a profile.
func (c *Coordinator) EnterGuestMode() {
	c.store.SetOrigin(model.OriginGuest)

	var sessions []*model.Session
	if c.guests != nil {
		loaded, err := c.guests.Load()
		if err != nil {
			log.Printf("history: guest history unavailable: %v", err)
		} else {
			sessions = loaded
		}
	}
	c.store.ReplaceAll(sessions)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconcile replaces the store's session list with the backend's, for
// authenticated users only. A failure to list sessions aborts the whole
// reconciliation; a failure to fetch one session's messages degrades that
// session to an empty message list.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	user, ok := c.auth.Current()
	if !ok {
		return nil // guests never call the backend for history
	}

	summaries, err := c.backend.ListSessions(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	remote := make([]*model.Session, 0, len(summaries))
	for _, summary := range summaries {
		remote = append(remote, c.fetchSession(ctx, user.ID, summary))
	}

	// Most recently active first; stable so equal timestamps keep the
	// backend's ordering.
	sort.SliceStable(remote, func(i, j int) bool {
		return remote[i].UpdatedAt.After(remote[j].UpdatedAt)
	})

	c.store.ReplaceAll(Merge(c.store.Sessions(), remote))
	return nil
}

// fetchSession builds one local session from its summary. Partial failures
// are isolated per session.
func (c *Coordinator) fetchSession(ctx context.Context, userID string, summary model.SessionSummary) *model.Session {
	sess := model.NewSessionWithID(summary.SessionID, model.OriginAuthenticated)
	sess.Title = summary.Title
	sess.CreatedAt = summary.LastActiveAt
	sess.UpdatedAt = summary.LastActiveAt

	messages, err := c.backend.SessionMessages(ctx, summary.SessionID, userID)
	if err != nil {
		log.Printf("history: failed to fetch messages for session %s, keeping it empty: %v", summary.SessionID, err)
		messages = nil
	}
	for _, m := range messages {
		sess.Messages = append(sess.Messages, m.ToMessage())
	}

	// The listing preview can lag behind a rename; the metadata endpoint
	// has the stored title. Keep the summary data when it fails.
	if meta, err := c.backend.SessionMetadata(ctx, summary.SessionID, userID); err == nil && meta.Title != "" {
		sess.Title = meta.Title
	}
	if sess.Title == "" {
		if first := firstUserContent(sess); first != "" {
			sess.Title = model.TitleFromContent(first)
		}
	}

	sess.UpdatedAt = summary.LastActiveAt
	return sess
}

// Merge reconciles local sessions with the server-authoritative set, keyed
// by session ID. The remote side wins for listing metadata; a local
// session with an exchange still in flight keeps its in-flight message
// content. Local-only sessions are dropped: the server owns authenticated
// history, and empty drafts are never listed anyway.
func Merge(local, remote []*model.Session) []*model.Session {
	byID := make(map[string]*model.Session, len(local))
	for _, sess := range local {
		byID[sess.ID] = sess
	}

	out := make([]*model.Session, 0, len(remote))
	for _, r := range remote {
		if l, ok := byID[r.ID]; ok && l.MessageCount() > r.MessageCount() {
			// Local has content the server hasn't persisted yet.
			r.Messages = l.Messages
		}
		out = append(out, r)
	}
	return out
}

func firstUserContent(sess *model.Session) string {
	for _, msg := range sess.Messages {
		if msg.Role == model.RoleUser && !msg.IsEmpty() {
			return msg.GetDisplayContent()
		}
	}
	return ""
}

// =============================================================================
// OPTIMISTIC REMOTE MUTATIONS
// =============================================================================

// DeleteSession removes a session locally, then issues the remote delete
// concurrently for authenticated users. The local removal is never rolled
// back; the returned channel delivers the remote outcome (nil for guests
// or when the session was absent).
func (c *Coordinator) DeleteSession(id string) <-chan error {
	result := make(chan error, 1)

	removed := c.store.DeleteSession(id)
	if !removed {
		result <- nil
		return result
	}

	user, ok := c.auth.Current()
	if !ok {
		result <- c.SaveGuest()
		return result
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), remoteCallTimeout)
		defer cancel()
		err := c.backend.DeleteSession(ctx, id, user.ID)
		if err != nil {
			log.Printf("history: remote delete of session %s failed (local removal kept): %v", id, err)
		}
		result <- err
	}()
	return result
}

// RenameSession retitles a session locally, then issues the remote rename
// concurrently for authenticated users. Same optimistic contract as
// DeleteSession.
func (c *Coordinator) RenameSession(id, title string) <-chan error {
	result := make(chan error, 1)

	if c.store.Get(id) == nil {
		result <- nil
		return result
	}
	c.store.RenameSession(id, title)

	user, ok := c.auth.Current()
	if !ok {
		result <- c.SaveGuest()
		return result
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), remoteCallTimeout)
		defer cancel()
		err := c.backend.RenameSession(ctx, id, user.ID, title)
		if err != nil {
			log.Printf("history: remote rename of session %s failed (local title kept): %v", id, err)
		}
		result <- err
	}()
	return result
}

// SaveGuest persists the current session set when in guest mode. Empty
// sessions are pruned by the guest store on every write.
func (c *Coordinator) SaveGuest() error {
	if !c.auth.IsGuest() || c.guests == nil {
		return nil
	}
	return c.guests.Save(c.store.Sessions())
}
