package store

import (
	"encoding/json"
	"time"
)

// RequestStatus is the state of a request in its lifecycle.
type RequestStatus string

const (
	StatusPending RequestStatus = "PENDING"
	StatusQueued  RequestStatus = "QUEUED"
	StatusRunning RequestStatus = "RUNNING"
	StatusDone    RequestStatus = "DONE"
	StatusFailed  RequestStatus = "FAILED"
)

// ParseStatus maps a stored status string to a RequestStatus. Unknown or
// future values map to PENDING so that newer writers do not break older
// readers.
func ParseStatus(s string) RequestStatus {
	switch RequestStatus(s) {
	case StatusPending, StatusQueued, StatusRunning, StatusDone, StatusFailed:
		return RequestStatus(s)
	default:
		return StatusPending
	}
}

// IsTerminal reports whether a request can never leave this status.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Request is a persisted record of one execute call.
type Request struct {
	ID                int64           `json:"request_id"`
	UserID            string          `json:"user_id"`
	Dataset           string          `json:"dataset"`
	Product           string          `json:"product"`
	Query             json.RawMessage `json:"query"`
	Format            string          `json:"format"`
	Status            RequestStatus   `json:"status"`
	Priority          int             `json:"priority"`
	EstimateSizeBytes int64           `json:"estimate_size_bytes"`
	WorkerID          *int64          `json:"worker_id,omitempty"`
	CreatedOn         time.Time       `json:"created_on"`
	LastUpdate        time.Time       `json:"last_update"`
	FailReason        *string         `json:"fail_reason,omitempty"`
}

// Download describes the artifact produced for a DONE request.
type Download struct {
	ID           int64     `json:"download_id"`
	RequestID    int64     `json:"request_id"`
	LocationPath string    `json:"location_path"`
	DownloadURI  string    `json:"download_uri"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedOn    time.Time `json:"created_on"`
}

// Worker is an executor process registration, used for attribution and
// diagnostics only.
type Worker struct {
	ID               int64     `json:"worker_id"`
	Host             string    `json:"host"`
	Status           string    `json:"status"`
	SchedulerPort    int       `json:"scheduler_port"`
	DashboardAddress string    `json:"dashboard_address"`
	CreatedOn        time.Time `json:"created_on"`
}

// RequestUpdate carries the optional columns of an update_request call.
type RequestUpdate struct {
	WorkerID     *int64
	LocationPath *string
	DownloadURI  *string
	SizeBytes    *int64
	FailReason   *string
}
