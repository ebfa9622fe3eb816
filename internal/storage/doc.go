// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable local persistence for guest-mode chat
// sessions and the logged-in user profile.
//
// Guest sessions live as a single keyed record in a local SQLite database:
// the serialized session list under one key. Sessions with zero messages
// are filtered out before every write, and when nothing remains the record
// is cleared entirely. Absence or a deserialize failure on load is treated
// as "no history", never as a fatal error.
//
// Authenticated sessions are always backend-authoritative and are not
// cached locally across reloads.
package storage
