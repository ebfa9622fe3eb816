// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/jeranaias/weho-chat/internal/backend"
	"github.com/jeranaias/weho-chat/internal/model"
	"github.com/jeranaias/weho-chat/internal/store"
	"github.com/jeranaias/weho-chat/internal/stream"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeChatter struct {
	lastReq  backend.ChatRequest
	response string
	err      error
	body     io.ReadCloser
}

func (f *fakeChatter) Chat(ctx context.Context, req backend.ChatRequest) (io.ReadCloser, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.body != nil {
		return f.body, nil
	}
	return io.NopCloser(strings.NewReader(f.response)), nil
}

type guestIdentity struct{}

func (guestIdentity) IsGuest() bool  { return true }
func (guestIdentity) UserID() string { return "" }

type userIdentity struct{ id string }

func (u userIdentity) IsGuest() bool  { return false }
func (u userIdentity) UserID() string { return u.id }

// failingBody yields its payload, then fails the stream.
type failingBody struct {
	payload string
	err     error
	served  bool
}

func (b *failingBody) Read(p []byte) (int, error) {
	if !b.served {
		b.served = true
		return copy(p, b.payload), nil
	}
	return 0, b.err
}

func (b *failingBody) Close() error { return nil }

func newTestController(chatter Chatter, ident Identity) (*Controller, *store.Store, string) {
	st := store.New(model.OriginGuest)
	id := st.CreateSession()
	return NewController(st, chatter, ident, nil), st, id
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestSubmitHappyPath(t *testing.T) {
	chatter := &fakeChatter{response: "the answer"}
	ctrl, st, id := newTestController(chatter, guestIdentity{})

	var observed strings.Builder
	ctrl.OnChunk = func(sessionID, chunk string) { observed.WriteString(chunk) }

	if err := ctrl.Submit(context.Background(), id, "  a question  ", nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sess := st.Get(id)
	if sess.MessageCount() != 2 {
		t.Fatalf("MessageCount() = %d, want user + assistant", sess.MessageCount())
	}
	if got := sess.Messages[0].Content; got != "a question" {
		t.Errorf("user message = %q, want trimmed content", got)
	}
	if got := sess.LastMessage().Content; got != "the answer" {
		t.Errorf("assistant message = %q", got)
	}
	if observed.String() != "the answer" {
		t.Errorf("OnChunk saw %q", observed.String())
	}
	if sess.Title != "a question" {
		t.Errorf("title = %q, want derived from first message", sess.Title)
	}
	if st.Busy(id) {
		t.Error("session should be idle after a completed exchange")
	}

	req := chatter.lastReq
	if req.Query != "a question" || req.SessionID != id || !req.IsGuest {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("request history = %+v, want the new user message included", req.Messages)
	}
}

func TestSubmitAuthenticatedCarriesUserID(t *testing.T) {
	chatter := &fakeChatter{response: "ok"}
	ctrl, _, id := newTestController(chatter, userIdentity{id: "user-9"})

	if err := ctrl.Submit(context.Background(), id, "hi", nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if chatter.lastReq.IsGuest || chatter.lastReq.UserID != "user-9" {
		t.Errorf("request = %+v", chatter.lastReq)
	}
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	ctrl, st, id := newTestController(&fakeChatter{}, guestIdentity{})

	if err := ctrl.Submit(context.Background(), id, "   \n\t ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
	if st.Get(id).MessageCount() != 0 {
		t.Error("rejected submission must not touch the store")
	}
}

func TestSubmitAttachmentOnlyAllowed(t *testing.T) {
	ctrl, st, id := newTestController(&fakeChatter{response: "got it"}, guestIdentity{})

	att := []model.Attachment{{Name: "f.txt", MimeType: "text/plain", ContentRef: "r"}}
	if err := ctrl.Submit(context.Background(), id, "", att); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := st.Get(id).Messages[0].Attachments; len(got) != 1 {
		t.Error("attachment should be carried on the user message")
	}
}

func TestSubmitRejectsUnknownSession(t *testing.T) {
	ctrl, _, _ := newTestController(&fakeChatter{}, guestIdentity{})
	if err := ctrl.Submit(context.Background(), "missing", "hi", nil); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSubmitRejectsBusySession(t *testing.T) {
	ctrl, st, id := newTestController(&fakeChatter{}, guestIdentity{})
	st.AppendMessage(id, model.NewUserMessage("pending", nil))

	if err := ctrl.Submit(context.Background(), id, "another", nil); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("err = %v, want ErrSessionBusy", err)
	}
	if st.Get(id).MessageCount() != 1 {
		t.Error("rejected submission must not append a message")
	}
}

// =============================================================================
// FAILURE CONTRACT TESTS
// =============================================================================

func TestSubmitPreStreamFailureKeepsUserMessage(t *testing.T) {
	apiErr := &backend.APIError{Status: 503, Message: "overloaded"}
	ctrl, st, id := newTestController(&fakeChatter{err: apiErr}, guestIdentity{})

	err := ctrl.Submit(context.Background(), id, "hello", nil)
	if !errors.Is(err, apiErr) {
		t.Fatalf("err = %v, want the API error", err)
	}

	sess := st.Get(id)
	if sess.MessageCount() != 1 {
		t.Fatalf("MessageCount() = %d, want only the user message", sess.MessageCount())
	}
	if sess.Messages[0].Role != model.RoleUser {
		t.Error("no assistant message should exist after a pre-stream failure")
	}
	if st.Busy(id) {
		t.Error("session should return to idle so the user can retry")
	}
}

func TestSubmitMidStreamFailureAppendsFallback(t *testing.T) {
	body := &failingBody{payload: "partial ", err: errors.New("conn reset")}
	ctrl, st, id := newTestController(&fakeChatter{body: body}, guestIdentity{})

	err := ctrl.Submit(context.Background(), id, "hello", nil)
	var streamErr *stream.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("err = %v, want *stream.StreamError", err)
	}

	sess := st.Get(id)
	if sess.MessageCount() != 3 {
		t.Fatalf("MessageCount() = %d, want user + partial + fallback", sess.MessageCount())
	}
	if got := sess.Messages[1].Content; got != "partial " {
		t.Errorf("partial = %q", got)
	}
	if got := sess.LastMessage().Content; got != stream.FallbackErrorMessage {
		t.Errorf("fallback = %q, want %q", got, stream.FallbackErrorMessage)
	}
	if st.Busy(id) {
		t.Error("session should be idle after the failed exchange")
	}
}

func TestSubmitSequentialExchanges(t *testing.T) {
	chatter := &fakeChatter{response: "one"}
	ctrl, st, id := newTestController(chatter, guestIdentity{})

	if err := ctrl.Submit(context.Background(), id, "first", nil); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	chatter.response = "two"
	if err := ctrl.Submit(context.Background(), id, "second", nil); err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	if got := st.Get(id).MessageCount(); got != 4 {
		t.Errorf("MessageCount() = %d, want 4", got)
	}
	if len(chatter.lastReq.Messages) != 3 {
		t.Errorf("second request history has %d messages, want prior exchange plus new message", len(chatter.lastReq.Messages))
	}
}

// =============================================================================
// CANCELLATION TESTS
// =============================================================================

func TestCancelSessionStopsStream(t *testing.T) {
	ctrl, st, id := newTestController(&fakeChatter{}, guestIdentity{})

	// Directly exercise the cancellation registry: a registered cancel is
	// invoked and removed.
	ctx, cancel := context.WithCancel(context.Background())
	ctrl.registerCancel(id, cancel)
	ctrl.cancelSession(id)

	if ctx.Err() == nil {
		t.Error("cancelSession should cancel the registered context")
	}
	ctrl.cancelSession(id) // second call is a no-op
	_ = st
}
