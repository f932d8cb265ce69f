package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requestCols = []string{
	"request_id", "user_id", "dataset", "product", "query", "format", "status",
	"priority", "estimate_size_bytes", "worker_id", "created_on", "last_update",
	"fail_reason",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestCreateRequest(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO requests`).
		WithArgs("user-1", "era5", "reanalysis", `{"variable":"tas"}`, "netcdf", 0, int64(1024)).
		WillReturnRows(sqlmock.NewRows([]string{"request_id"}).AddRow(int64(42)))

	id, err := s.CreateRequest(context.Background(), "user-1", "era5", "reanalysis",
		json.RawMessage(`{"variable":"tas"}`), "netcdf", 1024, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRequest(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM requests WHERE request_id`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow(
			int64(7), "user-1", "era5", "reanalysis", []byte(`{}`), "netcdf",
			"RUNNING", 0, int64(100), int64(3), now, now, nil,
		))

	req, err := s.GetRequest(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, req.Status)
	require.NotNil(t, req.WorkerID)
	assert.Equal(t, int64(3), *req.WorkerID)
	assert.Nil(t, req.FailReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRequest_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM requests WHERE request_id`).
		WithArgs(int64(999)).
		WillReturnRows(sqlmock.NewRows(requestCols))

	_, err := s.GetRequest(context.Background(), 999)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestGetRequest_UnknownStatusMapsToPending(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM requests WHERE request_id`).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow(
			int64(8), "user-1", "era5", "reanalysis", []byte(`{}`), "netcdf",
			"ARCHIVED", 0, int64(0), nil, now, now, nil,
		))

	req, err := s.GetRequest(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
}

func TestMarkQueued(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE requests SET status = 'QUEUED'`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.MarkQueued(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMarkQueued_AlreadyQueued(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE requests SET status = 'QUEUED'`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.MarkQueued(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkRunning_DuplicateDelivery(t *testing.T) {
	s, mock := newMockStore(t)

	// first delivery claims the request
	mock.ExpectExec(`UPDATE requests SET status = 'RUNNING'`).
		WithArgs(int64(5), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// duplicate delivery finds it no longer QUEUED
	mock.ExpectExec(`UPDATE requests SET status = 'RUNNING'`).
		WithArgs(int64(5), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := s.MarkRunning(context.Background(), 5, 2)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.MarkRunning(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestUpdateRequest_DoneInsertsDownload(t *testing.T) {
	s, mock := newMockStore(t)

	path := "/store/42/result.nc"
	uri := "/download/42"
	size := int64(2048)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE requests`).
		WithArgs(int64(42), "DONE", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO downloads`).
		WithArgs(int64(42), path, uri, size).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.UpdateRequest(context.Background(), 42, StatusDone, RequestUpdate{
		LocationPath: &path,
		DownloadURI:  &uri,
		SizeBytes:    &size,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRequest_FailedSkipsDownload(t *testing.T) {
	s, mock := newMockStore(t)

	reason := "Processing timeout"
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE requests`).
		WithArgs(int64(42), "FAILED", nil, reason).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateRequest(context.Background(), 42, StatusFailed, RequestUpdate{
		FailReason: &reason,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRequest_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE requests`).
		WithArgs(int64(1), "DONE", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.UpdateRequest(context.Background(), 1, StatusDone, RequestUpdate{})
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestCountActiveRequests(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\)(.+)FROM requests`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := s.CountActiveRequests(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetRequestsByStatus_AdmissionOrder(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM requests WHERE status = \$1 ORDER BY priority ASC, created_on ASC`).
		WithArgs("PENDING").
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow(int64(1), "u1", "era5", "p", []byte(`{}`), "netcdf", "PENDING", 0, int64(0), nil, now, now, nil).
			AddRow(int64(2), "u2", "era5", "p", []byte(`{}`), "netcdf", "PENDING", 1, int64(0), nil, now, now, nil))

	reqs, err := s.GetRequestsByStatus(context.Background(), StatusPending)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, int64(1), reqs[0].ID)
}

func TestReapStale_CoversQueuedAndRunning(t *testing.T) {
	s, mock := newMockStore(t)

	// a QUEUED row whose message was lost must be requeued too, not just
	// orphaned RUNNING rows
	mock.ExpectExec(`UPDATE requests SET status = 'PENDING'(.+)WHERE status IN \('QUEUED', 'RUNNING'\)`).
		WithArgs(float64(1800)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.ReapStale(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDownload(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM downloads WHERE request_id`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"download_id", "request_id", "location_path", "download_uri", "size_bytes", "created_on",
		}).AddRow(int64(1), int64(42), "/store/42/out.nc", "/download/42", int64(2048), now))

	d, err := s.GetDownload(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "/store/42/out.nc", d.LocationPath)
	assert.Equal(t, int64(2048), d.SizeBytes)
}
