// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store implements the in-memory session store.
//
// The Store is the single source of truth for the set of chat sessions and
// which one is active. It owns session creation, deletion, rename,
// active-session selection, and message-list mutation, and carries an
// explicit per-session exchange state machine:
//
//	Idle -> AwaitingResponse -> Streaming -> Idle
//
// All mutations are serialized under an internal mutex; each mutation is a
// pure transform of prior state to new state, so a chunk arriving while
// another operation runs can never observe a half-applied change.
//
// # Stale chunk guard
//
// ApplyChunk drops (and logs) any chunk targeting a message that is not the
// currently open assistant message for its session. This makes the
// delete-during-stream race safe: a stale chunk arriving after its session
// was deleted is discarded rather than resurrecting the session.
package store
