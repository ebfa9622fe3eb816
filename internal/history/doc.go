// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history reconciles the local session store against the backend.
//
// On login or app boot while authenticated, the coordinator fetches the
// user's session summaries, then each session's messages individually, and
// replaces the store's list wholesale with the reconciled set. A message
// fetch failing for one session never aborts the batch: that session
// degrades to an empty message list and reconciliation continues.
//
// Remote mutations (delete, rename) are optimistic: local state changes
// first and is never rolled back. The remote outcome is delivered on a
// buffered channel the caller may observe for notification purposes, or
// ignore entirely.
//
// Guest sessions never touch the backend; entering guest mode loads the
// locally persisted list instead.
package history
