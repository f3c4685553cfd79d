package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/havenlist/havenlist/internal/rbac"
	"github.com/havenlist/havenlist/internal/shared"
)

const userColumns = `id, first_name, last_name, email, user_type, status, verified, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.UserType, &u.Status, &u.Verified, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser fetches one user by id.
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.UserType, &u.Status, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// UpdateStatus sets the account lifecycle state.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status rbac.UserStatus) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1
		RETURNING `+userColumns, id, status).
		Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.UserType, &u.Status, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// UpdateUserType changes the account tier.
func (r *Repository) UpdateUserType(ctx context.Context, id uuid.UUID, userType rbac.UserType) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		UPDATE users SET user_type = $2, updated_at = NOW() WHERE id = $1
		RETURNING `+userColumns, id, userType).
		Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.UserType, &u.Status, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}
