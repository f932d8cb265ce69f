// Package store is the relational request store: the single source of truth
// for users, roles, requests, downloads and workers.
//
// All operations map 1:1 to SQL statements or transactions against
// PostgreSQL. Status flips that guard the state machine (PENDING->QUEUED,
// QUEUED->RUNNING) are conditional UPDATEs so that concurrent brokers or
// duplicate queue deliveries resolve to exactly one winner.
//
// The Download row for a DONE request is inserted in the same transaction as
// the status update, so a Download exists if and only if its request reached
// DONE with a non-empty artifact.
package store
