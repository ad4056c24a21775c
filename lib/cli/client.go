// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// DefaultServerURL is the address the CLI talks to when none is configured.
const DefaultServerURL = "http://localhost:5000"

// GenerateParams are the optional sampling parameters of a generate call.
// Nil fields are omitted so the server applies its defaults.
type GenerateParams struct {
	Prompt      string   `json:"prompt"`
	MaxLength   *int     `json:"max_length,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// HistoryEntry is one record returned by GET /history.
type HistoryEntry struct {
	ID            int64  `json:"id"`
	Prompt        string `json:"prompt"`
	GeneratedText string `json:"generated_text"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client calls a running textgen server.
type Client struct {
	baseURL    string
	authSecret string
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithAuthSecret sends "Authorization: Bearer=<secret>" on every call
func WithAuthSecret(secret string) ClientOption {
	return func(c *Client) { c.authSecret = secret }
}

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultServerURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate continues params.Prompt and returns the generated text.
func (c *Client) Generate(ctx context.Context, params GenerateParams) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	var resp struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := c.do(ctx, http.MethodPost, "/generate", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	return resp.GeneratedText, nil
}

// History lists stored generations. limit and offset are sent only when
// positive. An empty history is an empty slice, not an error.
func (c *Client) History(ctx context.Context, limit, offset int) ([]HistoryEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var entries []HistoryEntry
	err := c.do(ctx, http.MethodGet, path, nil, &entries)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusNotFound {
		return []HistoryEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.authSecret != "" {
		req.Header.Set("Authorization", "Bearer="+c.authSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorMessage extracts "error" or "message" from a JSON error body.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}
