package authz

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/enterprise-stock/internal/platform/httpx"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// Header names set by the upstream identity provider.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Identity places the already-resolved actor into the request context.
// Requests without a usable identity are answered with 401.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawID := strings.TrimSpace(r.Header.Get(HeaderActorID))
		role := strings.TrimSpace(r.Header.Get(HeaderActorRole))
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 || role == "" {
			httpx.RespondError(w, httpx.ErrUnauthenticated)
			return
		}
		ctx := shared.ContextWithActor(r.Context(), shared.Actor{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Middleware wires gate checks for read-only routes. Mutating operations are
// authorized inside the workflow services.
type Middleware struct {
	Gate   Gate
	Logger *slog.Logger
}

// RequireAny ensures the current actor holds at least one of perms.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			for _, p := range normalized {
				allowed, err := m.Gate.IsAllowed(r.Context(), actor.Role, p)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authz require any", slog.Any("error", err))
					}
					httpx.RespondError(w, err)
					return
				}
				if allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.RespondError(w, shared.ErrUnauthorized)
		})
	}
}
