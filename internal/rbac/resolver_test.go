package rbac_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/havenlist/havenlist/internal/rbac"
	"github.com/havenlist/havenlist/internal/shared"
	_ "github.com/havenlist/havenlist/testing"
)

type stubStore struct {
	mu        sync.Mutex
	userCalls int
	roleCalls int
	allCalls  int

	subjects map[uuid.UUID]rbac.Subject
	grants   map[uuid.UUID][]rbac.RoleGrant
	all      []rbac.Permission

	failUsers bool
	failAll   bool
	heedCtx   bool
}

func newStubStore() *stubStore {
	return &stubStore{
		subjects: make(map[uuid.UUID]rbac.Subject),
		grants:   make(map[uuid.UUID][]rbac.RoleGrant),
	}
}

func (s *stubStore) GetActiveUser(ctx context.Context, id uuid.UUID) (rbac.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userCalls++
	if s.heedCtx && ctx.Err() != nil {
		return rbac.Subject{}, fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, ctx.Err())
	}
	if s.failUsers {
		return rbac.Subject{}, fmt.Errorf("%w: connection refused", shared.ErrStoreUnavailable)
	}
	sub, ok := s.subjects[id]
	if !ok {
		return rbac.Subject{}, shared.ErrUnknownSubject
	}
	return sub, nil
}

func (s *stubStore) GetActiveRolesWithPermissions(_ context.Context, userID uuid.UUID) ([]rbac.RoleGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleCalls++
	return s.grants[userID], nil
}

func (s *stubStore) GetAllActivePermissions(_ context.Context) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allCalls++
	if s.failAll {
		return nil, fmt.Errorf("%w: connection refused", shared.ErrStoreUnavailable)
	}
	return s.all, nil
}

func (s *stubStore) counts() (users, roles, all int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userCalls, s.roleCalls, s.allCalls
}

func perm(module, action string) rbac.Permission {
	return rbac.Permission{
		ID:     uuid.New(),
		Name:   module + " " + action,
		Module: module,
		Action: action,
		Status: rbac.StatusActive,
	}
}

func activeSubject(userType rbac.UserType) rbac.Subject {
	return rbac.Subject{ID: uuid.New(), UserType: userType, Status: rbac.UserStatusActive}
}

func newResolver(store rbac.Store) (*rbac.Resolver, *rbac.MemoryCache) {
	cache := rbac.NewMemoryCache(0)
	return rbac.NewResolver(store, cache, nil, nil), cache
}

func TestResolveNoRolesNonAdminIsEmpty(t *testing.T) {
	store := newStubStore()
	sub := activeSubject(rbac.UserTypeRegular)
	store.subjects[sub.ID] = sub

	resolver, _ := newResolver(store)
	set, err := resolver.Resolve(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Empty(t, set)
}

func TestResolveUnknownSubjectIsEmptyAndUncached(t *testing.T) {
	store := newStubStore()
	resolver, cache := newResolver(store)

	set, err := resolver.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Empty(t, set)
	require.Equal(t, 0, cache.Len())
}

func TestResolveSuspendedSubjectIsEmpty(t *testing.T) {
	store := newStubStore()
	sub := rbac.Subject{ID: uuid.New(), UserType: rbac.UserTypeRegular, Status: rbac.UserStatusSuspended}
	store.subjects[sub.ID] = sub
	store.grants[sub.ID] = []rbac.RoleGrant{{
		Role:        rbac.Role{ID: uuid.New(), Name: "Agent", Status: rbac.StatusActive},
		Permissions: []rbac.Permission{perm("property_management", "view")},
	}}

	resolver, _ := newResolver(store)
	set, err := resolver.Resolve(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Empty(t, set)
}

func TestResolveAggregatesRolePermissions(t *testing.T) {
	store := newStubStore()
	sub := activeSubject(rbac.UserTypeRegular)
	store.subjects[sub.ID] = sub
	store.grants[sub.ID] = []rbac.RoleGrant{{
		Role: rbac.Role{ID: uuid.New(), Name: "Agent", Status: rbac.StatusActive},
		Permissions: []rbac.Permission{
			perm("property_management", "view"),
			perm("property_management", "create"),
		},
	}}

	resolver, _ := newResolver(store)
	set, err := resolver.Resolve(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"property_management:create", "property_management:view"}, set.Keys())

	require.True(t, set.Has("property_management", "view"))
	require.False(t, set.Has("property_management", "delete"))
}

func TestResolveAdminGetsEveryActivePermission(t *testing.T) {
	store := newStubStore()
	sub := activeSubject(rbac.UserTypeAdmin)
	store.subjects[sub.ID] = sub
	// Zero role assignments on purpose.
	store.all = []rbac.Permission{
		perm("dashboard", "view_admin"),
		perm("property_management", "delete"),
		perm("user_management", "activate"),
	}

	resolver, _ := newResolver(store)
	set, err := resolver.Resolve(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, set.Has("dashboard", "view_admin"))
	require.True(t, set.Has("property_management", "delete"))
	require.True(t, set.Has("user_management", "activate"))
}

func TestResolveSecondCallHitsCache(t *testing.T) {
	store := newStubStore()
	sub := activeSubject(rbac.UserTypeRegular)
	store.subjects[sub.ID] = sub
	store.grants[sub.ID] = []rbac.RoleGrant{{
		Role:        rbac.Role{ID: uuid.New(), Name: "Agent", Status: rbac.StatusActive},
		Permissions: []rbac.Permission{perm("dashboard", "view")},
	}}

	resolver, _ := newResolver(store)
	first, err := resolver.Resolve(context.Background(), sub.ID)
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), sub.ID)
	require.NoError(t, err)

	require.Equal(t, first.Keys(), second.Keys())
	users, roles, _ := store.counts()
	require.Equal(t, 1, users)
	require.Equal(t, 1, roles)
}

func TestResolveAfterInvalidateUserRequeriesStore(t *testing.T) {
	store := newStubStore()
	sub := activeSubject(rbac.UserTypeRegular)
	store.subjects[sub.ID] = sub
	store.grants[sub.ID] = []rbac.RoleGrant{{
		Role:        rbac.Role{ID: uuid.New(), Name: "Agent", Status: rbac.StatusActive},
		Permissions: []rbac.Permission{perm("dashboard", "view")},
	}}

	resolver, cache := newResolver(store)
	_, err := resolver.Resolve(context.Background(), sub.ID)
	require.NoError(t, err)

	// The grant changes and the management layer invalidates.
	store.mu.Lock()
	store.grants[sub.ID] = []rbac.RoleGrant{{
		Role:        rbac.Role{ID: uuid.New(), Name: "Manager", Status: rbac.StatusActive},
		Permissions: []rbac.Permission{perm("dashboard", "view"), perm("user_management", "view")},
	}}
	store.mu.Unlock()
	require.NoError(t, cache.InvalidateUser(context.Background(), sub.ID))

	set, err := resolver.Resolve(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, set.Has("user_management", "view"))
	users, _, _ := store.counts()
	require.Equal(t, 2, users)
}

func TestResolveStoreFailureSurfacesStoreUnavailable(t *testing.T) {
	store := newStubStore()
	store.failUsers = true

	resolver, _ := newResolver(store)
	_, err := resolver.Resolve(context.Background(), uuid.New())
	require.ErrorIs(t, err, shared.ErrStoreUnavailable)
}

func TestResolveFailureDoesNotPublishPartialEntry(t *testing.T) {
	store := newStubStore()
	sub := activeSubject(rbac.UserTypeAdmin)
	store.subjects[sub.ID] = sub
	store.grants[sub.ID] = []rbac.RoleGrant{{
		Role:        rbac.Role{ID: uuid.New(), Name: "Agent", Status: rbac.StatusActive},
		Permissions: []rbac.Permission{perm("dashboard", "view")},
	}}
	// The admin expansion fails halfway through the build.
	store.failAll = true

	resolver, cache := newResolver(store)
	_, err := resolver.Resolve(context.Background(), sub.ID)
	require.ErrorIs(t, err, shared.ErrStoreUnavailable)
	require.Equal(t, 0, cache.Len())
}

func TestResolveFlightOutlivesCallerCancellation(t *testing.T) {
	store := newStubStore()
	store.heedCtx = true
	sub := activeSubject(rbac.UserTypeRegular)
	store.subjects[sub.ID] = sub
	store.grants[sub.ID] = []rbac.RoleGrant{{
		Role:        rbac.Role{ID: uuid.New(), Name: "Agent", Status: rbac.StatusActive},
		Permissions: []rbac.Permission{perm("dashboard", "view")},
	}}

	resolver, cache := newResolver(store)

	// The triggering caller has already disconnected; the shared flight
	// still runs to completion so queued callers get a real answer.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	set, err := resolver.Resolve(ctx, sub.ID)
	require.NoError(t, err)
	require.True(t, set.Has("dashboard", "view"))

	_, found, err := cache.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, found)
}

func TestResolveConcurrentSingleStoreRoundTrip(t *testing.T) {
	store := newStubStore()
	sub := activeSubject(rbac.UserTypeRegular)
	store.subjects[sub.ID] = sub
	store.grants[sub.ID] = []rbac.RoleGrant{{
		Role: rbac.Role{ID: uuid.New(), Name: "Agent", Status: rbac.StatusActive},
		Permissions: []rbac.Permission{
			perm("property_management", "view"),
			perm("property_management", "create"),
		},
	}}

	resolver, cache := newResolver(store)
	want := []string{"property_management:create", "property_management:view"}

	var wg sync.WaitGroup
	results := make([][]string, 100)
	errs := make([]error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set, err := resolver.Resolve(context.Background(), sub.ID)
			errs[i] = err
			if err == nil {
				results[i] = set.Keys()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 100; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, want, results[i])
	}

	// All hundred callers shared one resolution flight.
	users, roles, _ := store.counts()
	require.Equal(t, 1, users)
	require.Equal(t, 1, roles)

	got, found, err := cache.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got.Keys())
}
