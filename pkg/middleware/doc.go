// Package middleware provides the HTTP middleware chain of the gateway:
// User-Token authentication, per-request correlation ids with request-scoped
// loggers, access logging, and panic recovery.
package middleware
