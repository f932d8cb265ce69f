package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRequestNotFound is returned when a request id does not exist.
var ErrRequestNotFound = errors.New("request not found")

const requestColumns = `
	request_id, user_id, dataset, product, query, format, status, priority,
	estimate_size_bytes, worker_id, created_on, last_update, fail_reason
`

// CreateRequest inserts a new PENDING request. The query document is stored
// verbatim as submitted; the output format is kept in its own column so the
// broker can frame queue messages without touching the document.
func (s *Store) CreateRequest(ctx context.Context, userID, dataset, product string, query json.RawMessage, format string, estimateSizeBytes int64, priority int) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO requests (user_id, dataset, product, query, format, status, priority, estimate_size_bytes)
		VALUES ($1, $2, $3, $4, $5, 'PENDING', $6, $7)
		RETURNING request_id
	`, userID, dataset, product, string(query), format, priority, estimateSizeBytes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return id, nil
}

// GetRequest loads a single request.
func (s *Store) GetRequest(ctx context.Context, id int64) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE request_id = $1
	`, id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// GetRequestsByUser returns all requests belonging to a user, newest first.
func (s *Store) GetRequestsByUser(ctx context.Context, userID string) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE user_id = $1
		ORDER BY created_on DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user requests: %w", err)
	}
	return collectRequests(rows)
}

// GetRequestsByStatus returns all requests in the given status in admission
// order (priority asc, created_on asc).
func (s *Store) GetRequestsByStatus(ctx context.Context, status RequestStatus) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE status = $1
		ORDER BY priority ASC, created_on ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list requests by status: %w", err)
	}
	return collectRequests(rows)
}

// CountActiveRequests counts a user's requests in QUEUED or RUNNING, the
// quantity capped by RUNNING_REQUEST_LIMIT.
func (s *Store) CountActiveRequests(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM requests
		WHERE user_id = $1 AND status IN ('QUEUED', 'RUNNING')
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active requests: %w", err)
	}
	return count, nil
}

// MarkQueued flips PENDING->QUEUED. It reports false when the request was
// not in PENDING, which makes the flip safe against a second broker.
func (s *Store) MarkQueued(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET status = 'QUEUED', last_update = NOW()
		WHERE request_id = $1 AND status = 'PENDING'
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark request queued: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkRunning flips QUEUED->RUNNING and attributes the request to a worker.
// It reports false when the request was not in QUEUED; duplicate queue
// deliveries use this to detect that another executor already claimed it.
func (s *Store) MarkRunning(ctx context.Context, id, workerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET status = 'RUNNING', worker_id = $2, last_update = NOW()
		WHERE request_id = $1 AND status = 'QUEUED'
	`, id, workerID)
	if err != nil {
		return false, fmt.Errorf("failed to mark request running: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateRequest sets the request status plus any optional columns. When the
// new status is DONE and a location path is provided, the Download row is
// inserted in the same transaction.
func (s *Store) UpdateRequest(ctx context.Context, id int64, status RequestStatus, upd RequestUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE requests
		SET status = $2,
		    last_update = NOW(),
		    worker_id = COALESCE($3, worker_id),
		    fail_reason = COALESCE($4, fail_reason)
		WHERE request_id = $1
	`, id, string(status), upd.WorkerID, upd.FailReason)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrRequestNotFound
	}

	if status == StatusDone && upd.LocationPath != nil {
		var size int64
		if upd.SizeBytes != nil {
			size = *upd.SizeBytes
		}
		var uri string
		if upd.DownloadURI != nil {
			uri = *upd.DownloadURI
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO downloads (request_id, location_path, download_uri, size_bytes)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (request_id) DO NOTHING
		`, id, *upd.LocationPath, uri, size); err != nil {
			return fmt.Errorf("failed to insert download: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit request update: %w", err)
	}
	return nil
}

// GetDownload loads the download row for a request.
func (s *Store) GetDownload(ctx context.Context, requestID int64) (*Download, error) {
	var d Download
	err := s.db.QueryRowContext(ctx, `
		SELECT download_id, request_id, location_path, download_uri, size_bytes, created_on
		FROM downloads
		WHERE request_id = $1
	`, requestID).Scan(&d.ID, &d.RequestID, &d.LocationPath, &d.DownloadURI, &d.SizeBytes, &d.CreatedOn)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download: %w", err)
	}
	return &d, nil
}

// ReapStale flips QUEUED and RUNNING requests whose last_update is older than
// the given age back to PENDING. This is the only legal recovery transition;
// it covers requests orphaned by a crashed executor and requests whose queue
// message was lost before any executor claimed them. Returns the number of
// requeued requests.
func (s *Store) ReapStale(ctx context.Context, age time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET status = 'PENDING', worker_id = NULL, last_update = NOW()
		WHERE status IN ('QUEUED', 'RUNNING') AND last_update < NOW() - $1 * INTERVAL '1 second'
	`, age.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		req        Request
		rawStatus  string
		query      []byte
		workerID   sql.NullInt64
		failReason sql.NullString
	)
	err := row.Scan(
		&req.ID, &req.UserID, &req.Dataset, &req.Product, &query, &req.Format,
		&rawStatus, &req.Priority, &req.EstimateSizeBytes, &workerID,
		&req.CreatedOn, &req.LastUpdate, &failReason,
	)
	if err != nil {
		return nil, err
	}
	req.Query = json.RawMessage(query)
	req.Status = ParseStatus(rawStatus)
	if workerID.Valid {
		req.WorkerID = &workerID.Int64
	}
	if failReason.Valid {
		req.FailReason = &failReason.String
	}
	return &req, nil
}

func collectRequests(rows *sql.Rows) ([]*Request, error) {
	defer rows.Close()
	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read requests: %w", err)
	}
	return out, nil
}
