// Package client is a typed Go SDK for the notes server: CRUD, sharing and
// history for notes, tasks and checklist items, the audit log, and the live
// view socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "notas-go-client"

	// maxErrorBody bounds how much of an error response is read. Success
	// bodies are not limited since lists carry inline background images.
	maxErrorBody = 64 << 10
)

// Client talks to one notes server as one user.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client

	Notes     *EntityService
	Tasks     *EntityService
	Checklist *EntityService
	Audit     *AuditService
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token that identifies the user.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. It does not apply to Watch.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for baseURL, e.g. "http://localhost:3030".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	c.Notes = &EntityService{c: c, kind: KindNotes}
	c.Tasks = &EntityService{c: c, kind: KindTasks}
	c.Checklist = &EntityService{c: c, kind: KindChecklist}
	c.Audit = &AuditService{c: c}
	return c
}

// Entities returns the service for a URL kind ("notes", "tasks" or "checklist").
func (c *Client) Entities(kind string) (*EntityService, error) {
	switch kind {
	case KindNotes:
		return c.Notes, nil
	case KindTasks:
		return c.Tasks, nil
	case KindChecklist:
		return c.Checklist, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

// Health returns the liveness report. It needs no token.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/api/v1/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready reports whether the server's storage is usable. A not-ready server
// answers 503, which surfaces as a retryable *APIError.
func (c *Client) Ready(ctx context.Context) error {
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := c.get(ctx, "/api/v1/ready", nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
			apiErr.Retryable = true
		}
		return err
	}
	if resp.Status != "ready" {
		return fmt.Errorf("server not ready: %v", resp.Checks)
	}
	return nil
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

// do sends one request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return parseAPIError(resp.StatusCode, errBody)
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	return c.do(ctx, http.MethodGet, withQuery(path, params), nil, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) put(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPut, path, body, result)
}

func (c *Client) del(ctx context.Context, path string, params url.Values, result any) error {
	return c.do(ctx, http.MethodDelete, withQuery(path, params), nil, result)
}
