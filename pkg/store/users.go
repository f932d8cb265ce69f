package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/geodds/geodds/pkg/auth"
)

// ErrUserNotFound is returned when a user id does not exist.
var ErrUserNotFound = errors.New("user not found")

// GetUser loads a user and their roles.
func (s *Store) GetUser(ctx context.Context, userID string) (*auth.User, error) {
	var user auth.User
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, api_key, contact_name, created_on
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&user.ID, &user.APIKey, &user.ContactName, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.role_name
		FROM roles r
		JOIN users_roles ur ON ur.role_id = r.role_id
		WHERE ur.user_id = $1
		ORDER BY r.role_name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		user.Roles = append(user.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}

	return &user, nil
}

// AddUser creates a user with the given roles. A missing id or api key is
// generated (UUID v4 and a 32-byte URL-safe token respectively). Role rows
// are created on demand.
func (s *Store) AddUser(ctx context.Context, contactName, userID, apiKey string, roles []string) (*auth.User, error) {
	if userID == "" {
		userID = auth.GenerateUserID()
	}
	if apiKey == "" {
		var err error
		if apiKey, err = auth.GenerateAPIKey(); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	user := &auth.User{ID: userID, APIKey: apiKey, ContactName: contactName, Roles: roles}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (user_id, api_key, contact_name)
		VALUES ($1, $2, $3)
		RETURNING created_on
	`, userID, apiKey, contactName).Scan(&user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	for _, role := range roles {
		var roleID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO roles (role_name) VALUES ($1)
			ON CONFLICT (role_name) DO UPDATE SET role_name = EXCLUDED.role_name
			RETURNING role_id
		`, role).Scan(&roleID)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert role %q: %w", role, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users_roles (user_id, role_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, userID, roleID); err != nil {
			return nil, fmt.Errorf("failed to link role %q: %w", role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user: %w", err)
	}
	return user, nil
}
