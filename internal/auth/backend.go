package auth

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

var (
	ErrNoRefreshToken = errors.New("no refresh token stored, log in again")
	ErrEmptyToken     = errors.New("auth response carried no access token")
)

// StatusError is a non-2xx answer from the auth endpoints
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("auth request failed: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("auth request failed: %d %s", e.Code, e.Body)
}

// User is the operator identity returned by login and refresh
type User struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Firstname string   `json:"firstname"`
	Lastname  string   `json:"lastname"`
	Roles     []string `json:"roles"`
}

// AuthResponse is the body of a successful login or refresh
type AuthResponse struct {
	User         User   `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Backend talks to the platform's authentication endpoints. It keeps the
// long-lived refresh credential in its own storage; the Store never reads it.
type Backend struct {
	baseURL string
	client  *http.Client
	refresh Storage
}

// NewBackend creates a backend for the API at baseURL
func NewBackend(baseURL string, refresh Storage) *Backend {
	if refresh == nil {
		refresh = &MemoryStorage{}
	}
	return &Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		refresh: refresh,
	}
}

// Login exchanges operator credentials for an access/refresh pair and keeps the refresh credential
func (b *Backend) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	resp, err := b.post(ctx, "/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	if err := b.refresh.Save(resp.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return resp, nil
}

// Refresh rotates the refresh credential and returns a new access credential.
// A 4xx rejection discards the refresh credential; network failures and 5xx keep it.
func (b *Backend) Refresh(ctx context.Context) (string, error) {
	refreshToken, err := b.refresh.Load()
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	resp, err := b.post(ctx, "/refresh", map[string]string{"refreshToken": refreshToken})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 {
			if derr := b.refresh.Delete(); derr != nil {
				log.Warn().Err(derr).Msg("Failed to discard rejected refresh token")
			}
		}
		log.Error().Err(err).Msg("Token refresh failed")
		return "", err
	}

	if resp.RefreshToken != "" {
		if err := b.refresh.Save(resp.RefreshToken); err != nil {
			log.Warn().Err(err).Msg("Failed to store rotated refresh token")
		}
	}
	return resp.Token, nil
}

// Logout forgets the refresh credential
func (b *Backend) Logout() error {
	return b.refresh.Delete()
}

// HasSession reports whether a refresh credential is stored
func (b *Backend) HasSession() bool {
	token, err := b.refresh.Load()
	return err == nil && token != ""
}

func (b *Backend) post(ctx context.Context, path string, payload interface{}) (*AuthResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out AuthResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if out.Token == "" {
		return nil, ErrEmptyToken
	}
	return &out, nil
}
