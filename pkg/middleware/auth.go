package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/geodds/geodds/pkg/auth"
	"github.com/geodds/geodds/pkg/contextkeys"
	"github.com/geodds/geodds/pkg/httputil"
	"github.com/geodds/geodds/pkg/observability"
	"github.com/geodds/geodds/pkg/store"
)

// UserLookup resolves a user id to the stored account.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*auth.User, error)
}

// AuthMiddleware resolves the User-Token header into an auth.Context. An
// absent header yields the anonymous context; malformed tokens and key
// mismatches are rejected.
type AuthMiddleware struct {
	users  UserLookup
	logger *observability.Logger
}

// NewAuthMiddleware creates the authentication middleware.
func NewAuthMiddleware(users UserLookup, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{users: users, logger: logger}
}

// Handler authenticates every request and stores the resolved identity in the
// request context. Routes that allow anonymous access proceed with the
// anonymous context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds, err := auth.ParseUserToken(r.Header.Get("User-Token"))
		if errors.Is(err, auth.ErrEmptyUserToken) {
			ctx := contextkeys.WithAuth(r.Context(), auth.AnonymousContext())
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		if err != nil {
			httputil.WriteBadRequest(w, "improper user token: expected <uuidv4>:<api_key>")
			return
		}

		user, err := m.users.GetUser(r.Context(), creds.UserID())
		if errors.Is(err, store.ErrUserNotFound) {
			httputil.WriteBadRequest(w, "authentication failed")
			return
		}
		if err != nil {
			m.logger.WithError(err).WithField("user_id", creds.UserID()).Error("user lookup failed")
			httputil.WriteInternalError(w)
			return
		}
		if !auth.VerifyKey(user.APIKey, creds.APIKey()) {
			httputil.WriteBadRequest(w, "authentication failed")
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), auth.NewContext(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuthenticated rejects anonymous callers. Placed after Handler on
// routes that write or expose per-user data.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if AuthContext(r).IsAnonymous() {
			httputil.WriteUnauthorized(w, "authorization failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthContext extracts the resolved identity from the request. Requests that
// did not pass through AuthMiddleware count as anonymous.
func AuthContext(r *http.Request) *auth.Context {
	if authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.Context); ok {
		return authCtx
	}
	return auth.AnonymousContext()
}
