// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// This package defines the core domain types used throughout the application
// for representing chat sessions, messages, attachments, and the server-side
// session summaries used during history reconciliation.
//
// # Key Types
//
//   - Session: one chat conversation thread with ordered messages
//   - Message: single message with role, content buffer, and attachments
//   - Attachment: transient file payload attached to a user message
//   - SessionSummary: lightweight server view of a session for listing
//   - Role: message role enumeration (user, assistant)
//
// # Usage
//
// Create a new guest session and append a message:
//
//	sess := model.NewSession(model.OriginGuest)
//	sess.AddMessage(model.NewUserMessage("Hello!", nil))
package model
