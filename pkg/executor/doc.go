// Package executor is the worker side of the dispatch loop. Each executor
// process registers itself, consumes queued requests one at a time and runs
// them on a bounded compute pool. The consumer takes new work only when a
// pool slot is free, so a long job never blocks acknowledgment traffic.
//
// Outcomes are written back to the request store: DONE with the artifact
// path and size, or FAILED with a reason. A job that does not finish within
// RESULT_CHECK_RETRIES polling rounds of SLEEP_SEC each is canceled and
// failed with "Processing timeout". Duplicate deliveries are detected by the
// QUEUED-status check and acknowledged without re-executing. A delivery hit
// by a transient store fault is left unacknowledged so it can be retried;
// before each blocking read the executor reclaims entries stranded in a dead
// consumer's pending list once they have idled for twice the polling budget.
//
// When the pool itself faults, the executor restarts it in place and falls
// back to recreating it from scratch; messages are accepted again only once
// the pool is healthy.
package executor
