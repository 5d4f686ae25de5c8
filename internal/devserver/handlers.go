package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/your-username/ehr-console/internal/auth"
	"github.com/your-username/ehr-console/internal/monitoring"
)

// Comment line sent while the stream is idle so proxies keep the connection
const keepAliveInterval = 15 * time.Second

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":      http.StatusText(status),
		"message":    message,
		"statusCode": status,
	})
}

// Login handles operator login
func Login(sessions *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		resp, err := sessions.Login(req.Email, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			log.Error().Err(err).Msg("Failed to open session")
			writeError(w, http.StatusInternalServerError, "Failed to open session")
			return
		}

		log.Info().Str("email", resp.User.Email).Msg("Operator logged in")
		writeJSON(w, http.StatusOK, resp)
	}
}

// Refresh rotates a refresh token
func Refresh(sessions *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refreshToken is required")
			return
		}

		resp, err := sessions.Rotate(req.RefreshToken)
		if err != nil {
			if errors.Is(err, ErrInvalidRefresh) {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			log.Error().Err(err).Msg("Failed to rotate session")
			writeError(w, http.StatusInternalServerError, "Failed to rotate session")
			return
		}

		log.Debug().Str("email", resp.User.Email).Msg("Session refreshed")
		writeJSON(w, http.StatusOK, resp)
	}
}

// Me returns the operator behind the access token
func Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"email":     claims.Email,
			"roles":     claims.Roles,
			"expiresAt": claims.ExpiresAt,
		})
	}
}

// GetMetrics returns the server metrics as JSON
func GetMetrics(collector *monitoring.MetricsCollector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"metrics":   collector.GetMetrics(),
			"timestamp": time.Now().UTC(),
		})
	}
}

// StreamSSE serves the log stream as server-sent events until the client
// leaves or its access token expires
func StreamSSE(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "Streaming unsupported")
			return
		}

		ctx := r.Context()
		expiry := tokenExpiry(claimsFrom(ctx))
		defer expiry.Stop()

		sub, ok := hub.Subscribe(ctx)
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "Stream unavailable")
			return
		}
		defer hub.Unsubscribe(context.Background(), sub)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-expiry.C:
				log.Info().Msg("Access token expired, closing stream")
				return

			case <-keepAlive.C:
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()

			case frame, ok := <-sub.Frames():
				if !ok {
					return
				}
				if err := writeEvent(w, frame); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, frame Frame) error {
	if frame.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", frame.Event); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", frame.Data)
	return err
}

// tokenExpiry fires when the token behind claims stops being valid
func tokenExpiry(claims *auth.Claims) *time.Timer {
	if claims == nil || claims.ExpiresAt == nil {
		t := time.NewTimer(time.Hour)
		t.Stop()
		return t
	}
	return time.NewTimer(time.Until(claims.ExpiresAt.Time))
}
