// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend implements the HTTP client for the remote chatbot backend.
//
// The backend owns authentication, document indexing, and prompt
// templating; this client only speaks the chat and history surface:
//
//   - Submit a chat turn and receive an incremental text stream
//   - List a user's sessions (summaries)
//   - Fetch one session's messages and metadata
//   - Delete and rename sessions
//
// All calls take a context for cancellation. Non-2xx responses become
// *APIError; a failure after streaming has begun surfaces through the
// returned body's Read, not from this package.
package backend
