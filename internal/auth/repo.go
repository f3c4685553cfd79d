package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/havenlist/havenlist/internal/shared"
)

// Repository abstracts user lookup for authentication.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// SQLRepository provides PostgreSQL backed persistence.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

// FindByEmail fetches a user by email address.
func (r *SQLRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, password_hash, user_type, status, created_at, updated_at
		FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.UserType, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
