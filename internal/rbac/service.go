package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/havenlist/havenlist/internal/platform/db"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// ErrDuplicate indicates a name or module/action collision.
var ErrDuplicate = errors.New("rbac: duplicate")

// ErrSystemRecord indicates an attempt to mutate a system role or permission.
var ErrSystemRecord = errors.New("rbac: system record is immutable")

// Service orchestrates role and permission management. Every committed
// mutation is followed by a cache invalidation: targeted for direct role
// (re)assignment, global for any role or permission content change.
type Service struct {
	pool   *pgxpool.Pool
	cache  Cache
	logger *slog.Logger
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, cache: cache, logger: logger}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, status, is_system, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Status, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, status, is_system, created_at, updated_at FROM roles WHERE id = $1`, id,
	).Scan(&role.ID, &role.Name, &role.Description, &role.Status, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role and clears the permission cache.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	var role Role
	err := s.pool.QueryRow(ctx, `
		INSERT INTO roles (id, name, description, status, is_system)
		VALUES ($1, $2, $3, 'active', FALSE)
		RETURNING id, name, description, status, is_system, created_at, updated_at`,
		uuid.New(), name, strings.TrimSpace(description),
	).Scan(&role.ID, &role.Name, &role.Description, &role.Status, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, mapPgError(err)
	}
	s.invalidateAll(ctx)
	return role, nil
}

// UpdateRole updates name, description and status of a non-system role.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, name, description string, status Status) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	existing, err := s.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if existing.IsSystem {
		return Role{}, ErrSystemRecord
	}
	var role Role
	err = s.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, status = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, status, is_system, created_at, updated_at`,
		id, name, strings.TrimSpace(description), status,
	).Scan(&role.ID, &role.Name, &role.Description, &role.Status, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, mapPgError(err)
	}
	s.invalidateAll(ctx)
	return role, nil
}

// DeleteRole removes a non-system role along with its assignments.
func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	existing, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return ErrSystemRecord
	}
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

// ListPermissions returns all permissions ordered by module and action.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, module, action, description, status, is_system FROM permissions ORDER BY module, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Module, &p.Action, &p.Description, &p.Status, &p.IsSystem); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CreatePermission inserts a new permission and clears the permission cache.
func (s *Service) CreatePermission(ctx context.Context, name, module, action, description string) (Permission, error) {
	module = strings.ToLower(strings.TrimSpace(module))
	action = strings.ToLower(strings.TrimSpace(action))
	if module == "" || action == "" {
		return Permission{}, errors.New("rbac: permission module and action required")
	}
	var p Permission
	err := s.pool.QueryRow(ctx, `
		INSERT INTO permissions (id, name, module, action, description, status, is_system)
		VALUES ($1, $2, $3, $4, $5, 'active', FALSE)
		RETURNING id, name, module, action, description, status, is_system`,
		uuid.New(), strings.TrimSpace(name), module, action, strings.TrimSpace(description),
	).Scan(&p.ID, &p.Name, &p.Module, &p.Action, &p.Description, &p.Status, &p.IsSystem)
	if err != nil {
		return Permission{}, mapPgError(err)
	}
	s.invalidateAll(ctx)
	return p, nil
}

// UpdatePermissionStatus flips a non-system permission between active and
// inactive. System permissions are immutable, same as the delete path.
func (s *Service) UpdatePermissionStatus(ctx context.Context, id uuid.UUID, status Status) (Permission, error) {
	var isSystem bool
	if err := s.pool.QueryRow(ctx, `SELECT is_system FROM permissions WHERE id = $1`, id).Scan(&isSystem); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	if isSystem {
		return Permission{}, ErrSystemRecord
	}
	var p Permission
	err := s.pool.QueryRow(ctx, `
		UPDATE permissions SET status = $2
		WHERE id = $1
		RETURNING id, name, module, action, description, status, is_system`,
		id, status,
	).Scan(&p.ID, &p.Name, &p.Module, &p.Action, &p.Description, &p.Status, &p.IsSystem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	s.invalidateAll(ctx)
	return p, nil
}

// DeletePermission removes a non-system permission.
func (s *Service) DeletePermission(ctx context.Context, id uuid.UUID) error {
	var isSystem bool
	if err := s.pool.QueryRow(ctx, `SELECT is_system FROM permissions WHERE id = $1`, id).Scan(&isSystem); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if isSystem {
		return ErrSystemRecord
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

// SetRolePermissions replaces the permission set of a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, permID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mapPgError(err)
	}
	// Which users hold the role is not tracked here; clear everything.
	s.invalidateAll(ctx)
	return nil
}

// AssignRole assigns a role to the given user and drops that user's cached
// capability set.
func (s *Service) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID); err != nil {
		return mapPgError(err)
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// RemoveRole removes a role from a user and drops that user's cached
// capability set.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// FlushCache clears the whole permission cache. Exposed for the operator
// endpoint; routine invalidation happens inside the mutation paths.
func (s *Service) FlushCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateAll(ctx)
}

func (s *Service) invalidateUser(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.logger.Error("invalidate user permission cache",
			slog.String("user_id", userID.String()), slog.Any("error", err))
	}
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.Error("invalidate permission cache", slog.Any("error", err))
	}
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
