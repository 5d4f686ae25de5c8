package devserver

import (
	"context"
	"net/http"

	"github.com/your-username/ehr-console/internal/auth"
)

type contextKey struct{}

// RequireAuth rejects requests without a valid bearer access token
func RequireAuth(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ehr-console"`)
				writeError(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}

			claims, err := sessions.Verify(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ehr-console", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(contextKey{}).(*auth.Claims)
	return claims
}
