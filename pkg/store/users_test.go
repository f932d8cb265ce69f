package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUser(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.NewString()
	now := time.Now()

	mock.ExpectQuery(`SELECT user_id, api_key, contact_name, created_on FROM users`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "api_key", "contact_name", "created_on"}).
			AddRow(id, "key-123", "Ada", now))
	mock.ExpectQuery(`SELECT r.role_name FROM roles`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"role_name"}).AddRow("admin").AddRow("public"))

	user, err := s.GetUser(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.ContactName)
	assert.Equal(t, "key-123", user.APIKey)
	assert.Equal(t, []string{"admin", "public"}, user.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.NewString()

	mock.ExpectQuery(`SELECT user_id, api_key, contact_name, created_on FROM users`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "api_key", "contact_name", "created_on"}))

	_, err := s.GetUser(context.Background(), id)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAddUser_GeneratesCredentials(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Grace").
		WillReturnRows(sqlmock.NewRows([]string{"created_on"}).AddRow(now))
	mock.ExpectQuery(`INSERT INTO roles`).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"role_id"}).AddRow(int64(1)))
	mock.ExpectExec(`INSERT INTO users_roles`).
		WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := s.AddUser(context.Background(), "Grace", "", "", []string{"public"})
	require.NoError(t, err)

	// id is a generated UUID v4 and the key is non-empty
	parsed, err := uuid.Parse(user.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.NotEmpty(t, user.APIKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}
