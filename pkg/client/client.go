// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client provides a Go client library for the Conduit API.
//
// Conduit orchestrates a fleet of local coding-agent subprocesses and
// exposes them as a service. This client library provides typed access to
// the API: projects, sessions, permission rules, and events.
//
// # Getting Started
//
// Create a client pointing to your Conduit server:
//
//	c := client.New("http://localhost:4321")
//
// The client provides access to different API resources through sub-clients:
//
//	// Register a project
//	proj, err := c.Projects.Create(ctx, client.ProjectParams{FolderPath: "/src/app"})
//
//	// Spawn a session and send it a turn
//	sess, err := c.Sessions.Create(ctx, client.SessionParams{ProjectID: proj.ID, DisplayName: "dev"})
//	err = c.Sessions.SendMessage(ctx, sess.ID, "add a README")
//
//	// Guard tool use
//	_, err = c.Permissions.Create(ctx, client.RuleParams{ToolName: "Bash", RuleContent: "rm -rf *", Behavior: "deny", Priority: 10})
//
// # API Versioning
//
// Conduit uses Stripe-style date-based API versioning. By default, the
// client uses the latest API version. You can pin to a specific version
// for stability:
//
//	c := client.New("http://localhost:4321", client.WithVersion("2026-01-17"))
//
// The version is sent via the Conduit-Version HTTP header on each request.
//
// # Error Handling
//
// API errors are returned as *APIError values, which include an error code
// and message:
//
//	sess, err := c.Sessions.Get(ctx, "unknown")
//	if err != nil {
//	    if apiErr, ok := err.(*client.APIError); ok {
//	        fmt.Printf("API error: %s - %s\n", apiErr.Code, apiErr.Message)
//	    }
//	}
//
// # Context Support
//
// All API methods accept a context.Context for cancellation and timeouts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a Conduit API client.
//
// A Client provides access to the Conduit API through resource-specific
// sub-clients. Use [New] to create a Client instance.
//
// The Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client

	// Projects provides access to project registration and lookup.
	Projects *ProjectClient

	// Sessions provides access to session lifecycle operations:
	// create, list, message, interrupt, kill, transcript.
	Sessions *SessionClient

	// Permissions provides access to permission rule management.
	Permissions *PermissionClient

	// Events provides access to the event history.
	Events *EventClient
}

// Option configures a [Client]. Options are passed to [New] to customize
// client behavior.
type Option func(*Client)

// New creates a new Conduit API client with the given base URL and options.
//
// The baseURL should be the root URL of the Conduit server (e.g.,
// "http://localhost:4321"). Any trailing slash is automatically removed.
//
// By default, the client uses:
//   - The latest API version ([LatestVersion])
//   - A 30-second HTTP timeout
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		version: LatestVersion,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Projects = &ProjectClient{c: c}
	c.Sessions = &SessionClient{c: c}
	c.Permissions = &PermissionClient{c: c}
	c.Events = &EventClient{c: c}

	return c
}

// WithVersion sets the API version to use for all requests.
func WithVersion(v string) Option {
	return func(c *Client) {
		c.version = v
	}
}

// WithHTTPClient sets a custom HTTP client for making requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout for all requests.
//
// The default timeout is 30 seconds. Session creation blocks until the
// agent connects (up to 15 seconds), so leave headroom above that.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// Version returns the API version being used.
func (c *Client) Version() string {
	return c.version
}

// BaseURL returns the base URL of the API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// apiResponse is the standard API response envelope.
type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// APIError represents an error response from the Conduit API.
//
// Common error codes include:
//   - "NOT_FOUND": The requested resource does not exist
//   - "BAD_REQUEST": The request was malformed or invalid
//   - "CONFLICT": The operation conflicts with current state
//   - "SPAWN_ERROR": The agent subprocess could not be started
//   - "BRIDGE_ERROR": The session bridge could not be established
//   - "INTERNAL_ERROR": An unexpected server error occurred
type APIError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details contains additional error information, if available.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// get performs a GET request to the given path.
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// post performs a POST request to the given path with no body.
func (c *Client) post(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil)
}

// postJSON performs a POST request with a JSON body.
func (c *Client) postJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data))
}

// patchJSON performs a PATCH request with a JSON body.
func (c *Client) patchJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPatch, path, bytes.NewReader(data))
}

// delete performs a DELETE request to the given path.
func (c *Client) delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// do performs an HTTP request and parses the response.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Conduit-Version", c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// parseResponse reads and parses an API response.
func (c *Client) parseResponse(resp *http.Response) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if len(respBody) == 0 {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
		}
		return nil, nil
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		// Return raw body for non-envelope responses
		return respBody, nil
	}

	if apiResp.Error != nil {
		return nil, apiResp.Error
	}

	return apiResp.Data, nil
}
