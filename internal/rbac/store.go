package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/havenlist/havenlist/internal/shared"
)

// Store reads the role/permission/assignment records the resolver needs.
// Implementations perform no caching; every call may hit persistent storage.
type Store interface {
	// GetActiveUser returns the authorization-relevant user attributes.
	// Returns shared.ErrUnknownSubject when no record matches.
	GetActiveUser(ctx context.Context, id uuid.UUID) (Subject, error)
	// GetActiveRolesWithPermissions returns the user's active roles with
	// their active permissions, ordered by role name. Inactive roles and
	// inactive permissions are filtered out at the query.
	GetActiveRolesWithPermissions(ctx context.Context, userID uuid.UUID) ([]RoleGrant, error)
	// GetAllActivePermissions returns every active permission, used for the
	// admin-tier expansion.
	GetAllActivePermissions(ctx context.Context) ([]Permission, error)
}

// SQLStore provides PostgreSQL backed persistence for the resolver.
type SQLStore struct {
	pool *pgxpool.Pool
}

// NewSQLStore constructs a store over the given pool.
func NewSQLStore(pool *pgxpool.Pool) *SQLStore {
	return &SQLStore{pool: pool}
}

// GetActiveUser fetches the subject attributes for one user.
func (s *SQLStore) GetActiveUser(ctx context.Context, id uuid.UUID) (Subject, error) {
	var sub Subject
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_type, status FROM users WHERE id = $1`, id,
	).Scan(&sub.ID, &sub.UserType, &sub.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subject{}, shared.ErrUnknownSubject
		}
		return Subject{}, fmt.Errorf("%w: get user: %w", shared.ErrStoreUnavailable, err)
	}
	return sub, nil
}

// GetActiveRolesWithPermissions joins user_roles, roles, role_permissions and
// permissions, keeping only active roles and active permissions.
func (s *SQLStore) GetActiveRolesWithPermissions(ctx context.Context, userID uuid.UUID) ([]RoleGrant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.status, r.is_system,
		       p.id, p.name, p.module, p.action, p.description, p.status, p.is_system
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.status = 'active'
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id AND p.status = 'active'
		WHERE ur.user_id = $1
		ORDER BY r.name, p.module, p.action`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: query roles: %w", shared.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var grants []RoleGrant
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var role Role
		var permID *uuid.UUID
		var permName, permModule, permAction, permDescription *string
		var permStatus *Status
		var permIsSystem *bool
		if err := rows.Scan(
			&role.ID, &role.Name, &role.Description, &role.Status, &role.IsSystem,
			&permID, &permName, &permModule, &permAction, &permDescription, &permStatus, &permIsSystem,
		); err != nil {
			return nil, fmt.Errorf("%w: scan role grant: %w", shared.ErrStoreUnavailable, err)
		}
		i, ok := index[role.ID]
		if !ok {
			i = len(grants)
			index[role.ID] = i
			grants = append(grants, RoleGrant{Role: role})
		}
		if permID != nil {
			grants[i].Permissions = append(grants[i].Permissions, Permission{
				ID:          *permID,
				Name:        *permName,
				Module:      *permModule,
				Action:      *permAction,
				Description: *permDescription,
				Status:      *permStatus,
				IsSystem:    *permIsSystem,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate role grants: %w", shared.ErrStoreUnavailable, err)
	}
	return grants, nil
}

// GetAllActivePermissions returns every active permission in the system.
func (s *SQLStore) GetAllActivePermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, module, action, description, status, is_system
		FROM permissions
		WHERE status = 'active'
		ORDER BY module, action`)
	if err != nil {
		return nil, fmt.Errorf("%w: query permissions: %w", shared.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Module, &p.Action, &p.Description, &p.Status, &p.IsSystem); err != nil {
			return nil, fmt.Errorf("%w: scan permission: %w", shared.ErrStoreUnavailable, err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate permissions: %w", shared.ErrStoreUnavailable, err)
	}
	return perms, nil
}
