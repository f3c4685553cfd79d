package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/havenlist/havenlist/internal/observability"
	"github.com/havenlist/havenlist/internal/platform/httpx"
	"github.com/havenlist/havenlist/internal/shared"
	"github.com/havenlist/havenlist/internal/token"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// DenyUnauthenticated means no usable credential or identity was
	// presented.
	DenyUnauthenticated Decision = iota
	// DenyForbidden means the subject is authenticated but lacks the
	// capability, or an internal failure forced a fail-closed denial.
	DenyForbidden
	// Allow grants the request.
	Allow
)

// String implements fmt.Stringer, used for metric labels and logs.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyForbidden:
		return "deny_forbidden"
	default:
		return "deny_unauthenticated"
	}
}

// Guard makes request-scoped authorization decisions. Checks run in order:
// credential presence, admin override, embedded snapshot (fast path, no
// I/O), then live resolution through the cache/store.
type Guard struct {
	resolver *Resolver
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewGuard constructs a guard. logger and metrics may be nil.
func NewGuard(resolver *Resolver, logger *slog.Logger, metrics *observability.Metrics) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{resolver: resolver, logger: logger, metrics: metrics}
}

// Authorize decides whether the holder of claims may perform action on
// module. A nil claims value denies as unauthenticated. Store failures deny
// as forbidden (fail-closed); the error kind stays in the internal log, never
// in the response.
func (g *Guard) Authorize(ctx context.Context, claims *token.Claims, module, action string) Decision {
	decision := g.authorize(ctx, claims, module, action)
	g.metrics.AuthzDecision(decision.String())
	return decision
}

func (g *Guard) authorize(ctx context.Context, claims *token.Claims, module, action string) Decision {
	if claims == nil {
		return DenyUnauthenticated
	}
	if claims.IsAdmin {
		return Allow
	}
	key := Key(module, action)
	if claims.HasPermission(key) {
		return Allow
	}

	// Snapshot lacks the capability: fall back to live resolution. This is
	// the path that picks up grants added after the credential was issued.
	set, err := g.resolver.Resolve(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrStoreUnavailable) {
			g.logger.Error("authorization store unavailable, denying closed",
				slog.String("user_id", claims.UserID.String()),
				slog.String("capability", key),
				slog.Any("error", err))
		} else {
			g.logger.Error("authorization resolve failed",
				slog.String("user_id", claims.UserID.String()),
				slog.String("capability", key),
				slog.Any("error", err))
		}
		return DenyForbidden
	}
	if set.HasKey(key) {
		return Allow
	}
	g.logger.Info("permission denied",
		slog.String("user_id", claims.UserID.String()),
		slog.String("capability", key))
	return DenyForbidden
}

// Authenticator verifies the bearer credential on every request and stores
// its claims in the context. Requests without a credential pass through
// unauthenticated; the permission middlewares deny them later. Expired and
// malformed credentials are rejected immediately with 401.
func Authenticator(codec *token.Codec, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := codec.Verify(raw)
			if err != nil {
				if errors.Is(err, token.ErrExpired) {
					httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "credential expired")
					return
				}
				logger.Warn("credential rejected", slog.Any("error", err))
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credential")
				return
			}
			next.ServeHTTP(w, r.WithContext(token.ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequirePermission gates a route on one module/action capability.
func (g *Guard) RequirePermission(module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := token.ClaimsFromContext(r.Context())
			switch g.Authorize(r.Context(), claims, module, action) {
			case Allow:
				next.ServeHTTP(w, r)
			case DenyUnauthenticated:
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			default:
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "you do not have permission to perform this action")
			}
		})
	}
}

// RequireAdmin gates a route on the admin tier alone.
func (g *Guard) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := token.ClaimsFromContext(r.Context())
			if claims == nil {
				g.metrics.AuthzDecision(DenyUnauthenticated.String())
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if !claims.IsAdmin {
				g.metrics.AuthzDecision(DenyForbidden.String())
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin privileges required")
				return
			}
			g.metrics.AuthzDecision(Allow.String())
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
