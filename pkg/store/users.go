package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nordicgov/citizenship-review/pkg/apperr"
	"github.com/nordicgov/citizenship-review/pkg/domain"
)

// NewUserInput is the writable subset of User fields at signup.
type NewUserInput struct {
	Email        string
	PasswordHash string
	DisplayName  string
	IsReviewer   bool
}

// CreateUser inserts a new User. Email uniqueness is enforced by the
// database; callers should check IsUniqueViolation on the returned error.
func (s *Store) CreateUser(ctx context.Context, in NewUserInput) (*domain.User, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		DisplayName:  in.DisplayName,
		IsActive:     true,
		IsReviewer:   in.IsReviewer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, is_active, is_reviewer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, u.ID, u.Email, u.PasswordHash, u.DisplayName, u.IsActive, u.IsReviewer, now)
	if err != nil {
		return nil, apperr.Storage(err, "insert user")
	}
	return u, nil
}

// GetUserByEmail looks up an active or inactive user by email, used by
// login to locate the password hash to verify against.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, display_name, is_active, is_reviewer, created_at, updated_at
		FROM users WHERE email = $1
	`, email)
	return scanUser(row)
}

// GetUser loads a User by id.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, display_name, is_active, is_reviewer, created_at, updated_at
		FROM users WHERE id = $1
	`, userID)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.IsActive, &u.IsReviewer, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Storage(err, "scan user")
	}
	return &u, nil
}
