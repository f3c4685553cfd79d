package users

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/havenlist/havenlist/internal/rbac"
)

// Service wraps user management rules.
type Service struct {
	repo   *Repository
	cache  rbac.Cache
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo *Repository, cache rbac.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// UpdateStatus changes the account lifecycle state. The cached capability set
// is dropped so a suspended account stops resolving immediately; a still
// unexpired credential keeps its snapshot until the guard's live fallback or
// expiry, which is the documented staleness window.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status rbac.UserStatus) (User, error) {
	user, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return User{}, err
	}
	s.invalidate(ctx, id)
	return user, nil
}

// UpdateUserType changes the account tier. Takes full effect at next token
// issuance; the live-resolution path picks it up immediately via the dropped
// cache entry.
func (s *Service) UpdateUserType(ctx context.Context, id uuid.UUID, userType rbac.UserType) (User, error) {
	user, err := s.repo.UpdateUserType(ctx, id, userType)
	if err != nil {
		return User{}, err
	}
	s.invalidate(ctx, id)
	return user, nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(ctx, id); err != nil {
		s.logger.Error("invalidate user permission cache",
			slog.String("user_id", id.String()), slog.Any("error", err))
	}
}
