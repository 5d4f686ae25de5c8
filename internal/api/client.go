// Package api is a thin client for the admin REST API that shares the
// access token with the log stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrUnauthorized = errors.New("request rejected after token refresh, log in again")

// Tokens is the shared access token store
type Tokens interface {
	Get() string
	Refresh(ctx context.Context) (string, error)
}

// Response is a fully read API response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) JSON(out interface{}) error {
	return json.Unmarshal(r.Body, out)
}

// Client sends authenticated requests. A 401 triggers one refresh through
// the shared store and a single retry.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  Tokens
}

func NewClient(baseURL string, tokens Tokens) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
	}
}

// Get fetches path relative to the API base URL
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post sends payload encoded as JSON
func (c *Client) Post(ctx context.Context, path string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, http.MethodPost, path, body)
}

func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	res, err := c.send(ctx, method, path, body, c.tokens.Get())
	if err != nil {
		return nil, err
	}
	if res.Status != http.StatusUnauthorized {
		return res, nil
	}

	log.Debug().Str("path", path).Msg("Access token rejected, refreshing")
	token, err := c.tokens.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	res, err = c.send(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if res.Status == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	return res, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (*Response, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	return &Response{Status: res.StatusCode, Header: res.Header, Body: data}, nil
}
