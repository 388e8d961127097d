// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/campreserv/chatkit/internal/model"
)

// Configuration constants for the chat backend API.
const (
	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for
	// transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client for all request/response calls.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests
	// (no timeout, context-controlled).
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// =============================================================================
// ERRORS
// =============================================================================

// Error variables for common backend errors.
var (
	// ErrUnauthorized indicates the auth token is missing, invalid or expired.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUploadsUnavailable indicates attachment uploads require an auth
	// token that the widget was not given.
	ErrUploadsUnavailable = errors.New("attachment uploads unavailable without auth token")
)

// APIError represents an error response from the chat backend.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat API error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("chat API error (HTTP %d): %s", e.Status, e.Message)
}

// apiErrorResponse is the backend's error body shape.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// SCOPE
// =============================================================================

// Mode identifies which side of the conversation the client speaks for.
type Mode string

const (
	ModeGuest Mode = "guest"
	ModeStaff Mode = "staff"
)

// Scope pins every request to one campground and one participant. The
// session id groups sends issued before the backend assigns a
// conversation id.
type Scope struct {
	CampgroundID  string
	Mode          Mode
	ParticipantID string // guest id in guest mode, staff id in staff mode
	AuthToken     string // empty in anonymous guest mode
	SessionID     string // client-generated, per widget mount
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a client for the Campreserv chat backend.
type Client struct {
	baseURL    string
	scope      Scope
	maxRetries int

	// limiter paces outgoing requests so a misbehaving UI loop cannot
	// hammer the backend.
	limiter *rate.Limiter
}

// NewClient creates a backend client for the given scope.
func NewClient(baseURL string, scope Scope) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		scope:      scope,
		maxRetries: DefaultMaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// Scope returns the scope the client was built with.
func (c *Client) Scope() Scope {
	return c.scope
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CanUpload reports whether the scope permits attachment uploads.
func (c *Client) CanUpload() bool {
	return c.scope.AuthToken != ""
}

// setHeaders sets the required headers for backend requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "campreserv-chatkit/1.0")
	if c.scope.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.scope.AuthToken)
	}
}

// debugLog enables request/response logging. The widget redirects the
// log package to a file when this is set; logging to the terminal would
// scribble over the UI.
var debugLog = os.Getenv("CHATKIT_DEBUG") != ""

// logRequest logs an API request without exposing sensitive data.
// Never logs headers (may contain auth) or bodies (may contain guest data).
func logRequest(req *http.Request) {
	if !debugLog {
		return
	}
	log.Printf("chat API request: %s %s", req.Method, req.URL.Path)
}

// logResponse logs an API response with duration.
func logResponse(resp *http.Response, duration time.Duration) {
	if !debugLog {
		return
	}
	log.Printf("chat API response: %d %s (%v)", resp.StatusCode, resp.Status, duration)
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// readResponse reads the response body with size limits.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts HTTP error responses to typed errors.
func handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		typed := &APIError{
			Code:    apiErr.Error.Code,
			Message: apiErr.Error.Message,
			Status:  statusCode,
		}
		switch statusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrUnauthorized, typed.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, typed.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, typed.Message)
		default:
			return typed
		}
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &APIError{Message: string(body), Status: statusCode}
	}
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	// Other sentinel errors (auth, not found) are terminal.
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) {
		return false
	}
	// Transport-level errors are retryable.
	return true
}

// calculateBackoff returns the delay to wait before the next retry.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// doJSON performs a JSON request with retry and backoff, decoding the
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var bodyBytes []byte
	if in != nil {
		var err error
		bodyBytes, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.doOnce(ctx, method, path, bodyBytes, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doOnce performs a single request against the backend.
func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	logRequest(req)
	start := time.Now()
	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	logResponse(resp, time.Since(start))

	respBody, err := readResponse(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return handleErrorResponse(resp.StatusCode, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// SEND
// =============================================================================

// SendRequest is the body of a message send, shared by the
// request/response and event-stream endpoints.
type SendRequest struct {
	CampgroundID   string             `json:"campgroundId"`
	Mode           Mode               `json:"mode"`
	SessionID      string             `json:"sessionId"`
	ConversationID string             `json:"conversationId,omitempty"`
	ParticipantID  string             `json:"participantId,omitempty"`
	Text           string             `json:"text"`
	Attachments    []model.Attachment `json:"attachments,omitempty"`
	Visibility     model.Visibility   `json:"visibility,omitempty"`
	RegenerateOf   string             `json:"regenerateOf,omitempty"`

	// Context is the recent public transcript accompanying the send.
	// Internal staff notes are never included, whichever side is sending.
	Context []*model.Message `json:"context,omitempty"`
}

// SendResponse is the request/response endpoint's complete reply.
type SendResponse struct {
	ConversationID string         `json:"conversationId"`
	ResponseID     string         `json:"responseId"`
	Message        *model.Message `json:"message"`
}

// Send posts a message and waits for the complete assistant reply.
// Used by the request/response transport driver.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	var resp SendResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/chat/send", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// =============================================================================
// ACTIONS, TOOLS, FEEDBACK
// =============================================================================

// ActionResult is the backend's reply to an action execution.
type ActionResult struct {
	Message *model.Message `json:"message,omitempty"`
}

// ExecuteAction resolves a pending action-required message by submitting
// the user's chosen option.
func (c *Client) ExecuteAction(ctx context.Context, actionID, optionID string) (*ActionResult, error) {
	body := map[string]string{"actionId": actionID, "optionId": optionID}
	var out ActionResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/chat/actions/execute", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteTool runs a backend-proposed tool call the user confirmed directly.
func (c *Client) ExecuteTool(ctx context.Context, tool string, args json.RawMessage) (*model.ToolResult, error) {
	body := map[string]any{"tool": tool, "args": args}
	var out model.ToolResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/chat/tools/execute", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rating is a thumbs up/down message rating.
type Rating string

const (
	RatingUp   Rating = "up"
	RatingDown Rating = "down"
)

// SubmitFeedback submits a fire-and-forget message rating.
func (c *Client) SubmitFeedback(ctx context.Context, messageID string, rating Rating) error {
	body := map[string]string{"messageId": messageID, "rating": string(rating)}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/chat/feedback", body, nil)
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthStatus is the backend's health report.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Health checks backend reachability. Used by the doctor command and not
// on any hot path.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
