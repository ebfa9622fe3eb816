// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream adapts the backend's incremental text stream into discrete
// chunk applications on the session store.
//
// Chunk boundaries on the wire are not aligned to message or character
// boundaries: a read may split a multi-byte UTF-8 sequence. ChunkDecoder
// decodes incrementally, carrying incomplete byte sequences to the next
// read, so decoded fragments are forwarded verbatim and in arrival order.
//
// On a transport failure mid-read, the engine closes the assistant message
// in its current (possibly empty) state and appends the fixed fallback
// error text as a new message, preserving partial output for the user while
// clearly marking the failure. No automatic retry is attempted.
package stream
