package middleware

import (
	"context"
	"net/http"
	"strings"

	"map-manager/internal/database"
)

// SessionCookieName is the cookie carrying the API session token.
const SessionCookieName = "map_manager_session"

// SessionStore is the part of the database used to authenticate requests.
type SessionStore interface {
	HasUsers(ctx context.Context) bool
	ValidateSession(ctx context.Context, token string) (*database.Session, error)
}

// publicPrefixes never require a session.
var publicPrefixes = []string{"/api/auth/", "/health", "/healthz", "/livez", "/readyz", "/version"}

// RequireAuth rejects /api requests without a valid session once an API
// password has been set. Tokens are read from the session cookie or an
// "Authorization: Bearer" header.
func RequireAuth(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			if !store.HasUsers(ctx) {
				next.ServeHTTP(w, r)
				return
			}

			token := SessionToken(r)
			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if _, err := store.ValidateSession(ctx, token); err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SessionToken extracts the session token from the request, preferring the
// bearer header over the cookie.
func SessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func isPublic(path string) bool {
	for _, p := range publicPrefixes {
		if path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}
