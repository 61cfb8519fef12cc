// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package client talks to a resinstat daemon: one-shot status polls,
// print commands, and a reconnecting push stream.
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

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/resinstat/pkg/api"
	"github.com/Thermoquad/resinstat/pkg/retry"
)

// SessionHeader carries the client session id on every request
const SessionHeader = "X-Client-Session"

// ErrGaveUp is returned by Stream once the reconnect budget is exhausted
var ErrGaveUp = errors.New("client: gave up reconnecting")

// DefaultPolicy reconnects after 1s doubling to 30s, five failures in a row
var DefaultPolicy = retry.Policy{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 5}

// APIError is a non-2xx response from the daemon
type APIError struct {
	StatusCode int
	Message    string
	// ErrorCode is the printer's own code for rejected commands
	ErrorCode *int
}

func (e *APIError) Error() string {
	if e.ErrorCode != nil {
		return fmt.Sprintf("client: %d %s (printer error %d)", e.StatusCode, e.Message, *e.ErrorCode)
	}
	return fmt.Sprintf("client: %d %s", e.StatusCode, e.Message)
}

// Client is safe for concurrent use
type Client struct {
	base    *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
	policy  retry.Policy
	logger  zerolog.Logger
	session string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for polls and commands
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPolicy replaces the stream reconnect policy
func WithPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithLogger sets the client logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the daemon at baseURL (for example
// http://localhost:3000). A bare host:port is treated as http.
func New(baseURL string, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, errors.New("client: empty base URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("client: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", base.Scheme)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	c := &Client{
		base:    base,
		http:    &http.Client{Timeout: 30 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		policy:  DefaultPolicy,
		logger:  zerolog.Nop(),
		session: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "client").Str("session", c.session).Logger()
	return c, nil
}

// Session returns the id sent with every request
func (c *Client) Session() string { return c.session }

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = c.base.Path + path
	return u.String()
}

func (c *Client) streamURL() string {
	u := *c.base
	u.Path = c.base.Path + "/ws"
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	req.Header.Set(SessionHeader, c.session)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error     string `json:"error"`
			ErrorCode *int   `json:"errorCode"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error, ErrorCode: e.ErrorCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s: %w", path, err)
	}
	return nil
}

// Status polls the daemon for the current snapshot
func (c *Client) Status(ctx context.Context) (*api.StatusPayload, error) {
	var st api.StatusPayload
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Connect asks the daemon to open its device link. An empty address uses
// the daemon's configured printer.
func (c *Client) Connect(ctx context.Context, address string) error {
	return c.do(ctx, http.MethodPost, "/api/connect", map[string]string{"printerIP": address}, nil)
}

// Disconnect asks the daemon to close its device link
func (c *Client) Disconnect(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/disconnect", nil, nil)
}

// Pause pauses the running job
func (c *Client) Pause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/print/pause", nil, nil)
}

// Resume resumes a paused job
func (c *Client) Resume(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/print/resume", nil, nil)
}

// Stop stops the running job
func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/print/stop", nil, nil)
}

// StartPrint starts printing a file already on the printer
func (c *Client) StartPrint(ctx context.Context, filename string) error {
	return c.do(ctx, http.MethodPost, "/api/print/start", map[string]string{"filePath": filename}, nil)
}
