package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestBackendLoginAndRefreshRotation(t *testing.T) {
	var refreshBodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "secret" {
				http.Error(w, "bad credentials", http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(AuthResponse{Token: "access-1", RefreshToken: "refresh-1", User: User{Email: body["email"]}})
		case "/refresh":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			refreshBodies = append(refreshBodies, body["refreshToken"])
			if body["refreshToken"] != "refresh-1" {
				http.Error(w, "refresh token reused", http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(AuthResponse{Token: "access-2", RefreshToken: "refresh-2"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	refresh := &MemoryStorage{}
	b := NewBackend(srv.URL+"/", refresh)

	if _, err := b.Login(context.Background(), "ops@example.com", "wrong"); err == nil {
		t.Fatal("expected login failure")
	}

	resp, err := b.Login(context.Background(), "ops@example.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Token != "access-1" || resp.User.Email != "ops@example.com" {
		t.Fatalf("unexpected login response: %+v", resp)
	}
	if !b.HasSession() {
		t.Fatal("expected stored refresh token after login")
	}

	token, err := b.Refresh(context.Background())
	if err != nil || token != "access-2" {
		t.Fatalf("Refresh: %q, %v", token, err)
	}
	if v, _ := refresh.Load(); v != "refresh-2" {
		t.Fatalf("expected rotated refresh token, got %q", v)
	}

	// refresh-2 is unknown to this server: the exchange is rejected and the credential dropped.
	_, err = b.Refresh(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if b.HasSession() {
		t.Fatal("rejected refresh token should be discarded")
	}

	if _, err := b.Refresh(context.Background()); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	if len(refreshBodies) != 2 {
		t.Fatalf("expected two refresh exchanges, got %v", refreshBodies)
	}
}

func TestBackendRefreshKeepsTokenOnNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	refresh := &MemoryStorage{}
	refresh.Save("keep-me")
	b := NewBackend(url, refresh)

	if _, err := b.Refresh(context.Background()); err == nil {
		t.Fatal("expected network error")
	}
	if v, _ := refresh.Load(); v != "keep-me" {
		t.Fatalf("refresh token should survive a network error, got %q", v)
	}
}

func TestBackendRefreshStatusHandling(t *testing.T) {
	tests := []struct {
		name string
		code int
		keep bool
	}{
		{"rejected", http.StatusUnauthorized, false},
		{"bad request", http.StatusBadRequest, false},
		{"server error", http.StatusInternalServerError, true},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.code)
			}))
			defer srv.Close()

			refresh := &MemoryStorage{}
			refresh.Save("refresh-1")
			b := NewBackend(srv.URL, refresh)

			_, err := b.Refresh(context.Background())
			var statusErr *StatusError
			if !errors.As(err, &statusErr) || statusErr.Code != tt.code {
				t.Fatalf("expected status %d, got %v", tt.code, err)
			}
			if got := b.HasSession(); got != tt.keep {
				t.Errorf("expected refresh token kept=%v, got %v", tt.keep, got)
			}
		})
	}
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: "ops@example.com",
		Roles: []string{"admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseClaims(signed)
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if claims.Email != "ops@example.com" || claims.Subject != "user-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	left, ok := claims.ExpiresIn(exp.Add(-time.Minute))
	if !ok || left != time.Minute {
		t.Fatalf("expected one minute left, got %v %v", left, ok)
	}

	if _, err := ParseClaims("not-a-jwt"); err == nil {
		t.Fatal("expected decode error")
	}
}
