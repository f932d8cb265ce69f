package store

import (
	"context"
	"fmt"
)

// CreateWorker registers an executor process and returns its id. Duplicate
// registrations from restarts simply create new rows; the table is
// diagnostic.
func (s *Store) CreateWorker(ctx context.Context, host, status string, schedulerPort int, dashboardAddress string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO workers (host, status, scheduler_port, dashboard_address)
		VALUES ($1, $2, $3, $4)
		RETURNING worker_id
	`, host, status, schedulerPort, dashboardAddress).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create worker: %w", err)
	}
	return id, nil
}

// UpdateWorkerStatus records a worker state change (e.g. "running",
// "stopped").
func (s *Store) UpdateWorkerStatus(ctx context.Context, workerID int64, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE workers SET status = $2 WHERE worker_id = $1
	`, workerID, status)
	if err != nil {
		return fmt.Errorf("failed to update worker status: %w", err)
	}
	return nil
}
