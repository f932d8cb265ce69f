// Package broker implements the admission control loop between PENDING and
// QUEUED requests. A single instance scans pending requests in (priority,
// created_on) order each tick, applies the per-user running-request quota and
// publishes admitted requests to the worker queue. Admission is fair FIFO
// with priority tie-breaking: a user at quota is skipped, not reordered, and
// is re-evaluated next tick.
//
// The broker also runs the recovery reaper: QUEUED and RUNNING requests
// whose last_update went stale (executor crash, lost queue message) flip back
// to PENDING, the only legal recovery transition.
package broker
