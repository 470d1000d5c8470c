// Package backend is the HTTP client for the upstream commerce API. All data
// operations of the BFF go through it; it owns bearer-token attachment and
// error normalization.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jawad0110/taqa-bff/internal/logging"
)

const (
	maxResponseBytes  = 8 << 20  // 8 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
)

// TokenSource supplies the bearer token for authenticated calls. Refresh is
// invoked at most once per request, when the backend rejects the current
// token with a 401.
type TokenSource interface {
	AccessToken() string
	Refresh(ctx context.Context) (string, error)
}

// Client calls the upstream commerce API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger
}

// Config configures the backend client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a backend client.
func New(cfg Config, log *logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Do executes a JSON request against the backend. ts may be nil for
// unauthenticated endpoints. When the backend answers 401 for an
// authenticated call, the token is refreshed through ts and the request is
// retried once; a second 401 propagates as an *APIError. On success the
// response body is decoded into out when out is non-nil.
func (c *Client) Do(ctx context.Context, ts TokenSource, method, path string, body, out interface{}) error {
	status, respBody, err := c.execute(ctx, ts, method, path, body, false)
	if err != nil {
		return err
	}

	if status >= 400 {
		return &APIError{
			Status:  status,
			Code:    errorCode(respBody),
			Message: extractMessage(respBody),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode backend response: %w", err)
		}
	}
	return nil
}

func (c *Client) execute(ctx context.Context, ts TokenSource, method, path string, body interface{}, retried bool) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ts != nil {
		if token := ts.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	limit := maxResponseBytes
	if resp.StatusCode >= 400 {
		limit = maxErrorBodyBytes
	}
	respBody, err := readAllLimit(resp.Body, int64(limit))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized && ts != nil && !retried {
		c.log.WithContext(ctx).Debugf("token rejected on %s %s, refreshing", method, path)
		if _, refreshErr := ts.Refresh(ctx); refreshErr != nil {
			return resp.StatusCode, respBody, nil
		}
		return c.execute(ctx, ts, method, path, body, true)
	}

	return resp.StatusCode, respBody, nil
}

// readAllLimit reads at most limit bytes, failing if the body exceeds it.
func readAllLimit(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response exceeds %d bytes", limit)
	}
	return data, nil
}

// Get issues an authenticated GET.
func (c *Client) Get(ctx context.Context, ts TokenSource, path string, out interface{}) error {
	return c.Do(ctx, ts, http.MethodGet, path, nil, out)
}

// Post issues an authenticated POST.
func (c *Client) Post(ctx context.Context, ts TokenSource, path string, body, out interface{}) error {
	return c.Do(ctx, ts, http.MethodPost, path, body, out)
}

// Patch issues an authenticated PATCH.
func (c *Client) Patch(ctx context.Context, ts TokenSource, path string, body, out interface{}) error {
	return c.Do(ctx, ts, http.MethodPatch, path, body, out)
}

// Delete issues an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, ts TokenSource, path string, out interface{}) error {
	return c.Do(ctx, ts, http.MethodDelete, path, nil, out)
}
