package rbac_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/havenlist/havenlist/internal/rbac"
	"github.com/havenlist/havenlist/internal/shared"
	"github.com/havenlist/havenlist/internal/token"
)

const testSecret = "middleware-test-secret"

func newGuard(store rbac.Store) *rbac.Guard {
	resolver, _ := newResolver(store)
	return rbac.NewGuard(resolver, nil, nil)
}

func claimsFor(sub rbac.Subject, permissions ...string) *token.Claims {
	return &token.Claims{
		UserID:      sub.ID,
		UserType:    string(sub.UserType),
		IsAdmin:     sub.UserType.IsAdminTier(),
		Permissions: permissions,
	}
}

func TestAuthorizeNilClaimsDeniesUnauthenticated(t *testing.T) {
	guard := newGuard(newStubStore())
	decision := guard.Authorize(context.Background(), nil, shared.ModuleDashboard, shared.ActionView)
	require.Equal(t, rbac.DenyUnauthenticated, decision)
}

func TestAuthorizeSnapshotFastPathSkipsStore(t *testing.T) {
	store := newStubStore()
	guard := newGuard(store)
	sub := activeSubject(rbac.UserTypeRegular)
	claims := claimsFor(sub, "property_management:view")

	decision := guard.Authorize(context.Background(), claims, shared.ModulePropertyManagement, shared.ActionView)
	require.Equal(t, rbac.Allow, decision)

	users, roles, all := store.counts()
	require.Zero(t, users)
	require.Zero(t, roles)
	require.Zero(t, all)
}

func TestAuthorizeAdminFlagAllowsEverything(t *testing.T) {
	store := newStubStore()
	guard := newGuard(store)
	sub := activeSubject(rbac.UserTypeSuperAdmin)
	claims := claimsFor(sub)

	require.Equal(t, rbac.Allow, guard.Authorize(context.Background(), claims, shared.ModuleDashboard, shared.ActionViewAdmin))
	require.Equal(t, rbac.Allow, guard.Authorize(context.Background(), claims, shared.ModuleRolePermission, shared.ActionDelete))
	users, _, _ := store.counts()
	require.Zero(t, users)
}

func TestAuthorizeFallsBackToLiveResolution(t *testing.T) {
	store := newStubStore()
	sub := activeSubject(rbac.UserTypeRegular)
	store.subjects[sub.ID] = sub
	store.grants[sub.ID] = []rbac.RoleGrant{{
		Role:        rbac.Role{ID: uuid.New(), Name: "Agent", Status: rbac.StatusActive},
		Permissions: []rbac.Permission{perm("property_management", "approve")},
	}}
	guard := newGuard(store)

	// The capability was granted after the credential was issued, so the
	// snapshot does not carry it.
	claims := claimsFor(sub, "property_management:view")
	decision := guard.Authorize(context.Background(), claims, shared.ModulePropertyManagement, shared.ActionApprove)
	require.Equal(t, rbac.Allow, decision)

	users, _, _ := store.counts()
	require.Equal(t, 1, users)
}

func TestAuthorizeDeniesMissingCapability(t *testing.T) {
	store := newStubStore()
	sub := activeSubject(rbac.UserTypeRegular)
	store.subjects[sub.ID] = sub
	guard := newGuard(store)

	claims := claimsFor(sub, "property_management:view")
	decision := guard.Authorize(context.Background(), claims, shared.ModulePropertyManagement, shared.ActionDelete)
	require.Equal(t, rbac.DenyForbidden, decision)
}

func TestAuthorizeSnapshotOutlivesRevocation(t *testing.T) {
	store := newStubStore()
	sub := activeSubject(rbac.UserTypeRegular)
	store.subjects[sub.ID] = sub
	// The grant has already been revoked in the store.
	store.grants[sub.ID] = nil

	resolver, cache := newResolver(store)
	guard := rbac.NewGuard(resolver, nil, nil)
	require.NoError(t, cache.InvalidateAll(context.Background()))

	// The unexpired credential still carries the capability, so the holder
	// keeps it until re-login; the guard never re-checks a capability the
	// snapshot contains.
	claims := claimsFor(sub, "property_management:create")
	decision := guard.Authorize(context.Background(), claims, shared.ModulePropertyManagement, shared.ActionCreate)
	require.Equal(t, rbac.Allow, decision)

	users, _, _ := store.counts()
	require.Zero(t, users)
}

func TestAuthorizeFailsClosedOnStoreFailure(t *testing.T) {
	store := newStubStore()
	store.failUsers = true
	guard := newGuard(store)

	sub := activeSubject(rbac.UserTypeRegular)
	claims := claimsFor(sub)
	decision := guard.Authorize(context.Background(), claims, shared.ModuleDashboard, shared.ActionView)
	require.Equal(t, rbac.DenyForbidden, decision)
}

func TestRequirePermissionEndToEnd(t *testing.T) {
	store := newStubStore()
	agent := activeSubject(rbac.UserTypeRegular)
	store.subjects[agent.ID] = agent
	guard := newGuard(store)
	codec := token.NewCodec(testSecret, time.Hour)

	r := chi.NewRouter()
	r.Use(rbac.Authenticator(codec, nil))
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	r.With(guard.RequirePermission(shared.ModulePropertyManagement, shared.ActionView)).Get("/properties", ok)
	r.With(guard.RequirePermission(shared.ModulePropertyManagement, shared.ActionCreate)).Post("/properties", ok)
	r.With(guard.RequirePermission(shared.ModulePropertyManagement, shared.ActionDelete)).Delete("/properties", ok)

	raw, err := codec.Issue(token.IssueParams{
		UserID:      agent.ID,
		UserType:    string(agent.UserType),
		Permissions: []string{"property_management:create", "property_management:view"},
	})
	require.NoError(t, err)

	do := func(method string) int {
		req := httptest.NewRequest(method, "/properties", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do(http.MethodGet))
	require.Equal(t, http.StatusOK, do(http.MethodPost))
	require.Equal(t, http.StatusForbidden, do(http.MethodDelete))

	// No credential at all.
	req := httptest.NewRequest(http.MethodGet, "/properties", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdminEndToEnd(t *testing.T) {
	guard := newGuard(newStubStore())
	codec := token.NewCodec(testSecret, time.Hour)

	r := chi.NewRouter()
	r.Use(rbac.Authenticator(codec, nil))
	r.With(guard.RequireAdmin()).Get("/admin", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	issue := func(userType rbac.UserType) string {
		raw, err := codec.Issue(token.IssueParams{
			UserID:   uuid.New(),
			UserType: string(userType),
			IsAdmin:  userType.IsAdminTier(),
		})
		require.NoError(t, err)
		return raw
	}
	do := func(bearer string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do(issue(rbac.UserTypeAdmin)))
	require.Equal(t, http.StatusForbidden, do(issue(rbac.UserTypeRegular)))
	require.Equal(t, http.StatusUnauthorized, do(""))
}

func TestAuthenticatorRejectsBadCredentials(t *testing.T) {
	codec := token.NewCodec(testSecret, time.Hour)

	r := chi.NewRouter()
	r.Use(rbac.Authenticator(codec, nil))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		if token.ClaimsFromContext(req.Context()) != nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	do := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	// No header passes through unauthenticated.
	require.Equal(t, http.StatusNoContent, do(""))

	// Garbage is rejected outright.
	require.Equal(t, http.StatusUnauthorized, do("Bearer not-a-credential"))

	// Wrong signing key.
	other := token.NewCodec("some-other-secret", time.Hour)
	forged, err := other.Issue(token.IssueParams{UserID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, do("Bearer "+forged))

	// Expired credential, signed with the right key.
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		Subject:   uuid.NewString(),
	})
	raw, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, do("Bearer "+raw))

	// A valid credential lands its claims in the context.
	good, err := codec.Issue(token.IssueParams{UserID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, do("Bearer "+good))
}
