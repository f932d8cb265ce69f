// Package api implements the HTTP gateway: dataset and product browsing,
// size estimates, execute/workflow submission, request tracking and artifact
// download. The gateway is stateless; request state lives in the store and
// admission happens in the broker. Every error response carries the
// {"detail": "..."} envelope.
package api
