// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives one chat exchange end to end: append the user
// message, submit the turn, stream the assistant response into the store,
// and handle transport failure.
//
// A session may have only one exchange in flight; Submit rejects a second
// submission while the session is busy. Deleting a session cancels its
// in-flight stream; the store's stale-chunk guard mops up anything already
// on the wire.
package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/jeranaias/weho-chat/internal/backend"
	"github.com/jeranaias/weho-chat/internal/history"
	"github.com/jeranaias/weho-chat/internal/model"
	"github.com/jeranaias/weho-chat/internal/store"
	"github.com/jeranaias/weho-chat/internal/stream"
)

// ErrSessionBusy is returned when a submission targets a session with an
// exchange already in flight.
var ErrSessionBusy = errors.New("session already has an exchange in flight")

// ErrEmptyMessage is returned when a submission has no text and no
// attachments.
var ErrEmptyMessage = errors.New("message is empty")

// ErrSessionNotFound is returned when a submission targets an unknown
// session.
var ErrSessionNotFound = errors.New("session not found")

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Chatter submits a chat turn and returns the response stream.
type Chatter interface {
	Chat(ctx context.Context, req backend.ChatRequest) (io.ReadCloser, error)
}

// Identity reports the current mode for building requests.
type Identity interface {
	IsGuest() bool
	UserID() string
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller coordinates the store, the backend, and the ingestion engine
// for chat submissions.
type Controller struct {
	store   *store.Store
	chatter Chatter
	engine  *stream.Engine
	ident   Identity
	coord   *history.Coordinator

	// OnChunk, when set, observes each decoded fragment as it is applied.
	// The rendering layer uses it for live display.
	OnChunk func(sessionID, chunk string)

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewController wires a controller to its collaborators. coord may be nil
// in tests; it is only used to persist guest history after an exchange.
func NewController(st *store.Store, chatter Chatter, ident Identity, coord *history.Coordinator) *Controller {
	return &Controller{
		store:   st,
		chatter: chatter,
		engine:  stream.NewEngine(st),
		ident:   ident,
		coord:   coord,
		cancels: make(map[string]context.CancelFunc),
	}
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit runs one chat exchange against the given session, blocking until
// the stream completes or fails. The session always ends Idle.
//
// Failure contract:
//   - busy session or empty input: rejected up front, store untouched
//   - non-2xx before streaming: no assistant message is created, the user
//     message stays, *backend.APIError is returned
//   - mid-stream failure: partial assistant message is closed, the fixed
//     fallback text is appended as a new message, *stream.StreamError is
//     returned
func (c *Controller) Submit(ctx context.Context, sessionID, text string, attachments []model.Attachment) error {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return ErrEmptyMessage
	}
	if c.store.Get(sessionID) == nil {
		return ErrSessionNotFound
	}
	if c.store.Busy(sessionID) {
		return ErrSessionBusy
	}

	c.store.AppendMessage(sessionID, model.NewUserMessage(text, attachments))

	req := backend.ChatRequest{
		Query:     text,
		SessionID: sessionID,
		IsGuest:   c.ident.IsGuest(),
		UserID:    c.ident.UserID(),
		Messages:  turnHistory(c.store.MessageHistory(sessionID)),
	}

	ctx, cancel := context.WithCancel(ctx)
	c.registerCancel(sessionID, cancel)
	defer c.unregisterCancel(sessionID)

	body, err := c.chatter.Chat(ctx, req)
	if err != nil {
		// No stream ever started: no assistant message, back to Idle.
		c.store.AbortExchange(sessionID)
		c.persistGuest()
		return err
	}
	defer body.Close()

	messageID, err := c.store.BeginAssistantMessage(sessionID)
	if err != nil {
		c.store.AbortExchange(sessionID)
		return err
	}

	err = c.engine.Run(ctx, sessionID, messageID, body, c.observer(sessionID))
	c.persistGuest()
	return err
}

// DeleteSession cancels any in-flight exchange for the session, then
// applies the optimistic local delete and remote call via the coordinator.
func (c *Controller) DeleteSession(id string) <-chan error {
	c.cancelSession(id)
	return c.coord.DeleteSession(id)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (c *Controller) observer(sessionID string) func(string) {
	if c.OnChunk == nil {
		return nil
	}
	return func(chunk string) {
		c.OnChunk(sessionID, chunk)
	}
}

func (c *Controller) persistGuest() {
	if c.coord == nil {
		return
	}
	if err := c.coord.SaveGuest(); err != nil {
		log.Printf("chat: failed to persist guest history: %v", err)
	}
}

func (c *Controller) registerCancel(sessionID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels[sessionID] = cancel
}

func (c *Controller) unregisterCancel(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancels, sessionID)
}

func (c *Controller) cancelSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.cancels[sessionID]; ok {
		cancel()
		delete(c.cancels, sessionID)
	}
}

// turnHistory converts a message snapshot to the wire form submitted with
// a chat turn.
func turnHistory(messages []*model.Message) []backend.TurnMessage {
	out := make([]backend.TurnMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, backend.TurnMessage{
			Role:    msg.Role.String(),
			Content: msg.GetDisplayContent(),
		})
	}
	return out
}
