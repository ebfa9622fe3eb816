// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/weho-chat/internal/model"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is the base URL for the backend API.
	DefaultBaseURL = "https://api.weho.websitetestingbox.com/api/v1"

	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultLanguage is sent with chat submissions when none is configured.
	DefaultLanguage = "English"

	// defaultRatePerSec bounds outbound request rate per client.
	defaultRatePerSec = 5

	// defaultRateBurst allows short bursts above the sustained rate.
	defaultRateBurst = 10

	// MaxErrorBodySize caps how much of an error response body is read.
	MaxErrorBodySize = 64 * 1024
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client for all non-streaming backend requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for chat submissions. No client-level
	// timeout: stream lifetime is controlled by the request context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
)

// =============================================================================
// CLIENT
// =============================================================================

// Options configures a Client.
type Options struct {
	// BaseURL of the backend API. Empty means DefaultBaseURL.
	BaseURL string
	// Language sent with chat submissions. Empty means DefaultLanguage.
	Language string
	// RequestsPerSec caps outbound request rate (0 = default).
	RequestsPerSec float64
	// Burst is the rate limiter burst size (0 = default).
	Burst int
}

// Client talks to the backend chat and history API.
type Client struct {
	baseURL  string
	language string
	http     *http.Client
	stream   *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a backend client. The base URL is validated eagerly so
// a misconfiguration fails at startup, not on the first call.
func NewClient(opts Options) (*Client, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}

	language := opts.Language
	if language == "" {
		language = DefaultLanguage
	}
	perSec := opts.RequestsPerSec
	if perSec <= 0 {
		perSec = defaultRatePerSec
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultRateBurst
	}

	return &Client{
		baseURL:  baseURL,
		language: language,
		http:     sharedHTTPClient,
		stream:   sharedStreamingClient,
		limiter:  rate.NewLimiter(rate.Limit(perSec), burst),
	}, nil
}

// Language returns the language sent with chat submissions.
func (c *Client) Language() string {
	return c.language
}

// =============================================================================
// CHAT SUBMISSION
// =============================================================================

// Chat submits a chat turn and returns the response body as an incremental
// UTF-8 text stream, terminated by transport close. The caller owns the
// returned body and must close it. A non-2xx status before streaming begins
// returns *APIError and no body.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if req.Language == "" {
		req.Language = c.language
	}
	if req.ThreadID == "" {
		req.ThreadID = "default"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chatbot-v2/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		resp.Body.Close()
		return nil, newAPIError(resp.StatusCode, errBody)
	}
	return resp.Body, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// ListSessions fetches the full list of session summaries for a user,
// ordered by the backend (most recently active first).
func (c *Client) ListSessions(ctx context.Context, userID string) ([]model.SessionSummary, error) {
	var wire []sessionSummary
	path := "/chatbot-v2/history/sessions/" + url.PathEscape(userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	summaries := make([]model.SessionSummary, 0, len(wire))
	for _, s := range wire {
		summaries = append(summaries, s.toSummary())
	}
	return summaries, nil
}

// SessionMessages fetches the ordered message list of one session.
func (c *Client) SessionMessages(ctx context.Context, sessionID, userID string) ([]HistoryMessage, error) {
	var messages []HistoryMessage
	path := "/chatbot-v2/history/session/" + url.PathEscape(sessionID) + "/" + url.PathEscape(userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SessionMetadata fetches the stored title and creation time of a session.
func (c *Client) SessionMetadata(ctx context.Context, sessionID, userID string) (SessionMetadata, error) {
	var meta SessionMetadata
	path := "/chatbot-v2/history/session/" + url.PathEscape(sessionID) + "/metadata/" + url.PathEscape(userID)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &meta)
	return meta, err
}

// DeleteSession removes a session from the backend.
func (c *Client) DeleteSession(ctx context.Context, sessionID, userID string) error {
	path := "/chatbot-v2/history/session/" + url.PathEscape(sessionID) + "/" + url.PathEscape(userID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// RenameSession sets a session's title on the backend.
func (c *Client) RenameSession(ctx context.Context, sessionID, userID, title string) error {
	path := "/chatbot-v2/history/session/" + url.PathEscape(sessionID) + "/rename"
	return c.doJSON(ctx, http.MethodPatch, path, RenameRequest{UserID: userID, Title: title}, nil)
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// doJSON performs a JSON request/response round trip. A nil in skips the
// request body; a nil out discards the response body.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return newAPIError(resp.StatusCode, errBody)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
