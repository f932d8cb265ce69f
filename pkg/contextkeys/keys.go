// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.Context
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: all authenticated API endpoints
	AuthKey Key = "auth_context"

	// RequestIDKey contains the per-HTTP-request correlation id (rid, UUID v4)
	// Set by: middleware.RequestID
	// Used by: request-scoped loggers; distinct from the numeric request_id
	// assigned by the store on execute
	RequestIDKey Key = "rid"

	// LoggerKey contains *observability.Logger with request fields attached
	// Set by: middleware.RequestID
	LoggerKey Key = "logger"
)

// WithAuth adds the authentication context to the context.
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithRequestID adds the correlation id to the context.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, RequestIDKey, rid)
}

// RequestID extracts the correlation id, or "" when absent.
func RequestID(ctx context.Context) string {
	rid, _ := ctx.Value(RequestIDKey).(string)
	return rid
}

// WithLogger adds a request-scoped logger to the context.
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
