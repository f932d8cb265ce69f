// Package observability provides structured logging, Prometheus metrics and
// dependency health checks for all geodds binaries.
//
// Logging is JSON (or text, per LOGGING_FORMAT) through a small facade over
// logrus. Request handlers log through a request-scoped logger carrying the
// correlation id (rid); the executor carries request_id and worker_id.
//
// Metrics cover the HTTP surface, the request state machine, queue publishes
// and consumes, and executor job durations. The gateway serves them on the
// health port via promhttp.
package observability
