package api

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
	"sync"
	"time"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrSessionNotFound = errors.New("session not found")
	ErrAPIError        = errors.New("backend api error")
)

// Client talks to the sandbox backend's HTTP surface: health, recreation,
// terminal sessions, input and resize. Streaming is handled by the transport
// package; this client only builds the stream URLs.
type Client struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTimeout bounds every non-streaming request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// New creates a backend client for the given base URL. token may be empty
// when the backend runs without auth (local development).
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetToken swaps the bearer token. Used by config hot reload; in-flight
// requests keep the token they started with.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthResult is the outcome of one probe against /sandbox/health.
type HealthResult struct {
	Healthy   bool
	SandboxID string
	CheckedAt time.Time
}

// Session identifies one terminal attachment on the backend.
type Session struct {
	ID        string
	CreatedAt time.Time
}

type healthResponse struct {
	Health struct {
		IsHealthy bool   `json:"isHealthy"`
		SandboxID string `json:"sandboxId,omitempty"`
	} `json:"health"`
}

type recreateResponse struct {
	SandboxID string `json:"sandboxId"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// Health probes the sandbox health endpoint once. The returned result is
// stamped with the local check time regardless of outcome; a network or
// decode failure returns an error instead.
func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	req, err := c.newRequest(ctx, "GET", "/sandbox/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var hr healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return nil, err
	}

	return &HealthResult{
		Healthy:   hr.Health.IsHealthy,
		SandboxID: hr.Health.SandboxID,
		CheckedAt: time.Now(),
	}, nil
}

// Recreate asks the backend for a fresh sandbox and returns its id. A 401
// maps to ErrUnauthorized; other failures wrap ErrAPIError with the response
// body text so callers can inspect the failure reason.
func (c *Client) Recreate(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, "POST", "/sandbox/recreate", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var rr recreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return "", err
	}
	if rr.SandboxID == "" {
		return "", fmt.Errorf("%w: recreate returned empty sandbox id", ErrAPIError)
	}
	return rr.SandboxID, nil
}

// CreateSession asks the backend for a new terminal session.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	req, err := c.newRequest(ctx, "POST", "/terminal/sessions", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var cr createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, err
	}
	if cr.SessionID == "" {
		return nil, fmt.Errorf("%w: create returned empty session id", ErrAPIError)
	}

	return &Session{ID: cr.SessionID, CreatedAt: time.Now()}, nil
}

// DeleteSession destroys a terminal session. Best-effort on the backend
// side; callers typically fire-and-forget this.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	req, err := c.newRequest(ctx, "DELETE", "/terminal/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrSessionNotFound
	}
	return checkStatus(resp)
}

// SendInput forwards raw terminal bytes to the session. The bytes are never
// inspected or transformed here.
func (c *Client) SendInput(ctx context.Context, sessionID string, data []byte) error {
	body, err := json.Marshal(map[string]string{"data": string(data)})
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, "POST", "/terminal/"+url.PathEscape(sessionID)+"/input", body)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrSessionNotFound
	}
	return checkStatus(resp)
}

// Resize informs the session of new terminal geometry.
func (c *Client) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	body, err := json.Marshal(map[string]int{"cols": cols, "rows": rows})
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, "POST", "/terminal/"+url.PathEscape(sessionID)+"/resize", body)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrSessionNotFound
	}
	return checkStatus(resp)
}

// StreamURL builds the server-sent-events URL for a session. The token
// rides as a query parameter because EventSource-style clients cannot set
// headers.
func (c *Client) StreamURL(sessionID string) string {
	u := c.baseURL + "/terminal/" + url.PathEscape(sessionID) + "/stream"
	if token := c.Token(); token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// SocketURL builds the websocket URL for a session.
func (c *Client) SocketURL(sessionID string) string {
	u := c.baseURL + "/terminal/" + url.PathEscape(sessionID) + "/ws"
	if strings.HasPrefix(u, "https://") {
		u = "wss://" + strings.TrimPrefix(u, "https://")
	} else if strings.HasPrefix(u, "http://") {
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	if token := c.Token(); token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// checkStatus converts non-2xx responses into errors, preserving the body
// text so callers can match on backend failure reasons.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}
	return fmt.Errorf("%w: status %d: %s", ErrAPIError, resp.StatusCode, text)
}
