package rbac_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/havenlist/havenlist/internal/rbac"
	_ "github.com/havenlist/havenlist/testing"
)

// Mirrors the permissions table from scripts/seed. The table carries no
// timestamp columns; service SQL must stay in step with it.
const permissionsDDL = `
CREATE TABLE IF NOT EXISTS permissions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	module TEXT NOT NULL,
	action TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	is_system BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (module, action)
)`

func newServiceFixture(t *testing.T) (*rbac.Service, *rbac.MemoryCache, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, permissionsDDL)
	require.NoError(t, err)

	cache := rbac.NewMemoryCache(0)
	return rbac.NewService(pool, cache, nil), cache, pool
}

func insertPermission(t *testing.T, pool *pgxpool.Pool, module, action string, system bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
		INSERT INTO permissions (id, name, module, action, status, is_system)
		VALUES ($1, $2, $3, $4, 'active', $5)`, id, module+" "+action, module, action, system)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM permissions WHERE id = $1`, id)
	})
	return id
}

func TestUpdatePermissionStatusAgainstSeededSchema(t *testing.T) {
	service, cache, pool := newServiceFixture(t)
	ctx := context.Background()
	id := insertPermission(t, pool, "integration_check", "flip", false)

	require.NoError(t, cache.Put(ctx, uuid.New(), rbac.NewCapabilitySet("dashboard:view")))

	perm, err := service.UpdatePermissionStatus(ctx, id, rbac.StatusInactive)
	require.NoError(t, err)
	require.Equal(t, rbac.StatusInactive, perm.Status)

	// The status change cleared the whole permission cache.
	require.Equal(t, 0, cache.Len())

	perm, err = service.UpdatePermissionStatus(ctx, id, rbac.StatusActive)
	require.NoError(t, err)
	require.Equal(t, rbac.StatusActive, perm.Status)
}

func TestUpdatePermissionStatusSystemRecordIsImmutable(t *testing.T) {
	service, cache, pool := newServiceFixture(t)
	ctx := context.Background()
	id := insertPermission(t, pool, "integration_check", "guard", true)

	require.NoError(t, cache.Put(ctx, uuid.New(), rbac.NewCapabilitySet("dashboard:view")))

	_, err := service.UpdatePermissionStatus(ctx, id, rbac.StatusInactive)
	require.ErrorIs(t, err, rbac.ErrSystemRecord)

	// A refused mutation must not invalidate anything.
	require.Equal(t, 1, cache.Len())

	var status string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM permissions WHERE id = $1`, id).Scan(&status))
	require.Equal(t, "active", status)
}

func TestUpdatePermissionStatusUnknownID(t *testing.T) {
	service, _, _ := newServiceFixture(t)

	_, err := service.UpdatePermissionStatus(context.Background(), uuid.New(), rbac.StatusInactive)
	require.ErrorIs(t, err, rbac.ErrNotFound)
}
