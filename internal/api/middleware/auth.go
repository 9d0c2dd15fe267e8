// Package middleware provides request authentication for the HTTP surface.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pysugar/strava-sync/internal/auth/session"
	"github.com/pysugar/strava-sync/internal/db/models"
	"github.com/pysugar/strava-sync/internal/store"
)

type contextKey string

const userKey contextKey = "currentUser"

// UserFromContext retrieves the authenticated user injected by RequireSession.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}

// RequireSession validates the bearer session token from the Authorization
// header and loads the corresponding user into the request context.
func RequireSession(issuer *session.Issuer, users *store.UserStore) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				unauthorized(w)
				return
			}

			claims, err := issuer.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				unauthorized(w)
				return
			}

			user, err := users.ByID(r.Context(), claims.UserID)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"type": "invalid_token", "detail": "could not validate credentials"}`))
}
