// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/weho-chat/internal/model"
	"github.com/jeranaias/weho-chat/internal/store"
)

// FallbackErrorMessage is the fixed assistant message appended after a
// mid-stream transport failure. It is always appended as a new message,
// even when partial content was already received.
const FallbackErrorMessage = "Sorry, I encountered an error. Please try again."

// readBufferSize is the size of the raw read buffer per stream.
const readBufferSize = 4096

// =============================================================================
// STREAM ERROR
// =============================================================================

// StreamError represents a transport failure mid-stream, preserving any
// partial content received before the error.
type StreamError struct {
	Partial string // Content received before the error
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// INGESTION ENGINE
// =============================================================================

// Engine consumes the backend's response body and applies decoded chunks to
// a single session's open assistant message, strictly in arrival order.
type Engine struct {
	store *store.Store
}

// NewEngine creates an engine bound to a session store.
func NewEngine(st *store.Store) *Engine {
	return &Engine{store: st}
}

// Run reads body to completion, forwarding each decoded fragment to the
// store (and to observe, when non-nil, for display). On a clean end of
// stream the assistant message is closed and Run returns nil.
//
// On a read failure or context cancellation the assistant message is closed
// in its current state, the fallback error text is appended as a new closed
// message, and a *StreamError is returned. If the session was deleted while
// streaming, the store's guards turn both mutations into no-ops.
func (e *Engine) Run(ctx context.Context, sessionID, messageID string, body io.Reader, observe func(chunk string)) error {
	dec := NewChunkDecoder()
	buf := make([]byte, readBufferSize)
	var received strings.Builder

	apply := func(text string) {
		if text == "" {
			return
		}
		received.WriteString(text)
		e.store.ApplyChunk(sessionID, messageID, text)
		if observe != nil {
			observe(text)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return e.fail(sessionID, messageID, received.String(), ctx.Err())
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			apply(dec.Decode(buf[:n]))
		}
		if err == io.EOF {
			apply(dec.Flush())
			e.store.CloseAssistantMessage(sessionID, messageID)
			return nil
		}
		if err != nil {
			return e.fail(sessionID, messageID, received.String(), err)
		}
	}
}

// fail closes the partial assistant message and appends the fallback text
// as a separate message, then reports the failure.
func (e *Engine) fail(sessionID, messageID, partial string, err error) error {
	e.store.CloseAssistantMessage(sessionID, messageID)
	e.store.AppendMessage(sessionID, model.NewClosedAssistantMessage(FallbackErrorMessage))
	return &StreamError{Partial: partial, Err: err}
}
