package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/havenlist/havenlist/internal/rbac"
	"github.com/havenlist/havenlist/internal/shared"
	"github.com/havenlist/havenlist/internal/token"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	resolver *rbac.Resolver
	codec    *token.Codec
}

// NewService constructs a new Service.
func NewService(repo Repository, resolver *rbac.Resolver, codec *token.Codec) *Service {
	return &Service{repo: repo, resolver: resolver, codec: codec}
}

// Authenticate validates email/password credentials. Missing accounts and
// wrong passwords are indistinguishable to the caller; non-active accounts
// surface as shared.ErrAccountInactive so the handler can answer 403 instead
// of 401. Repository failures pass through so an outage is not reported as a
// bad password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if user.Status != rbac.UserStatusActive {
		return nil, shared.ErrAccountInactive
	}
	return user, nil
}

// Login authenticates the user, resolves a fresh capability set and issues a
// credential embedding the snapshot. The snapshot is frozen at this moment;
// later grants are picked up by the guard's live fallback, later revocations
// only at re-login or expiry.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	set, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		// Fail closed rather than issuing a credential with an unknown
		// permission snapshot.
		return "", nil, err
	}
	signed, err := s.codec.Issue(token.IssueParams{
		UserID:      user.ID,
		Email:       user.Email,
		UserType:    string(user.UserType),
		IsAdmin:     user.UserType.IsAdminTier(),
		Permissions: set.Keys(),
	})
	if err != nil {
		return "", nil, err
	}
	return signed, user, nil
}
