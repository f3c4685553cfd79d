package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/havenlist/havenlist/internal/observability"
	"github.com/havenlist/havenlist/internal/shared"
)

// Resolver computes the effective capability set for a user: the active
// permissions of the user's active roles, plus every active permission for
// admin-tier users. Results are memoized in the cache; concurrent misses for
// the same user collapse into a single store round trip.
type Resolver struct {
	store   Store
	cache   Cache
	logger  *slog.Logger
	metrics *observability.Metrics
	flight  singleflight.Group
}

// NewResolver constructs a resolver. logger and metrics may be nil.
func NewResolver(store Store, cache Cache, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, cache: cache, logger: logger, metrics: metrics}
}

// Cache exposes the resolver's cache for invalidation by collaborators that
// mutate role or permission data.
func (r *Resolver) Cache() Cache {
	return r.cache
}

// Resolve returns the effective capability set for the user.
//
// An unknown subject and a non-active account both resolve to the empty set
// with a nil error; callers deny by default. A store failure surfaces as
// shared.ErrStoreUnavailable so the guard can fail closed instead of treating
// it as "no permissions granted silently".
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (CapabilitySet, error) {
	if set, ok := r.cacheGet(ctx, userID); ok {
		r.metrics.PermCacheHit()
		return set, nil
	}
	r.metrics.PermCacheMiss()

	start := time.Now()
	v, err, _ := r.flight.Do(userID.String(), func() (any, error) {
		// Queued callers share this one execution; detach it from the
		// first caller's lifetime so one disconnect does not fail the
		// whole flight.
		ctx := context.WithoutCancel(ctx)
		// Another flight may have populated the cache while this caller
		// was queued behind it.
		if set, ok := r.cacheGet(ctx, userID); ok {
			return set, nil
		}
		return r.resolveFromStore(ctx, userID)
	})
	r.metrics.ObserveResolveDuration(time.Since(start))
	if err != nil {
		return nil, err
	}
	set, ok := v.(CapabilitySet)
	if !ok {
		// Cannot happen by construction; treated as corruption and denied.
		return nil, fmt.Errorf("rbac: corrupt resolve result %T", v)
	}
	return set, nil
}

func (r *Resolver) cacheGet(ctx context.Context, userID uuid.UUID) (CapabilitySet, bool) {
	set, ok, err := r.cache.Get(ctx, userID)
	if err != nil {
		r.logger.Warn("permission cache read failed", slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, false
	}
	return set, ok
}

func (r *Resolver) resolveFromStore(ctx context.Context, userID uuid.UUID) (CapabilitySet, error) {
	sub, err := r.store.GetActiveUser(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrUnknownSubject) {
			// Zero capabilities, and nothing cached: the subject may be
			// created a moment later.
			return CapabilitySet{}, nil
		}
		return nil, err
	}
	if sub.Status != UserStatusActive {
		return CapabilitySet{}, nil
	}

	grants, err := r.store.GetActiveRolesWithPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(CapabilitySet)
	for _, grant := range grants {
		for _, perm := range grant.Permissions {
			set.Add(perm.Key())
		}
	}

	if sub.UserType.IsAdminTier() {
		all, err := r.store.GetAllActivePermissions(ctx)
		if err != nil {
			return nil, err
		}
		for _, perm := range all {
			set.Add(perm.Key())
		}
	}

	// Published only after the whole set is built; an abandoned resolve
	// never leaves a partial entry behind.
	if err := r.cache.Put(ctx, userID, set); err != nil {
		r.logger.Warn("permission cache write failed", slog.String("user_id", userID.String()), slog.Any("error", err))
	}
	return set, nil
}
