// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned when the client has no base URL.
var ErrNotConfigured = errors.New("backend not configured: missing base URL")

// =============================================================================
// API ERROR
// =============================================================================

// APIError is a non-2xx response from the backend, received before any
// streaming began. It is transient from the caller's perspective: local
// state is untouched and the operation can be re-invoked.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// Is matches any *APIError with the same status, so call sites can compare
// against a sentinel like &APIError{Status: 404}.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Status == t.Status
}

// newAPIError builds an APIError from a response body. The backend emits
// either {"detail": "..."} or plain text.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return &APIError{Status: status, Message: payload.Detail}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
}
