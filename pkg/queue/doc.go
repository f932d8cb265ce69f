// Package queue couples the admission broker and the executors through a
// durable work queue.
//
// # Message Contract
//
// A query message body is a delimited tuple (separator configurable via
// MESSAGE_SEPARATOR, default backslash):
//
//	<request_id>\<dataset>\<product>\<query_json>\<format>
//
// The query JSON is the canonical representation produced by the gateway and
// contains no literal separator characters; Encode rejects payloads that
// would break the framing. A second message type carries workflows:
//
//	<request_id>\workflow\<task_list_json>
//
// # Transport
//
// The transport is a Redis Stream named "query_queue" with a consumer group
// shared by all executors. Delivery is at-least-once: unacknowledged entries
// stay in the consumer's pending list, and duplicates are resolved by the
// executor's QUEUED-status check. Entries stranded in a dead consumer's
// pending list are transferred to a live consumer via Reclaim. An
// acknowledgment is valid only on the connection that delivered the entry,
// so Delivery.Ack is bound to the consuming client. The stream itself is
// trimmed to a configurable cap on publish; acknowledging never removes
// entries.
package queue
