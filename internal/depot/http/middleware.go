package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/pkg/httpx"
)

type identityCtxKey struct{}

// identityFromCtx returns the authenticated identity placed there by
// RequireAuth. The zero Identity means no authenticated caller.
func identityFromCtx(ctx context.Context) domain.Identity {
	if id, ok := ctx.Value(identityCtxKey{}).(domain.Identity); ok {
		return id
	}
	return domain.Identity{}
}

// bearerToken extracts the access token from the Authorization header.
// The header is the only accepted transport; tokens in query strings or
// cookies are ignored so they never end up in access logs.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAuth verifies the bearer token and stores the identity in the
// request context. Also seeds the httpx keys so per-user rate limiting
// works downstream.
func RequireAuth(session service.Session) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeServiceError(r.Context(), w, service.ErrInvalidAccess)
				return
			}

			id, err := session.VerifyAccess(r.Context(), token)
			if err != nil {
				writeServiceError(r.Context(), w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityCtxKey{}, id)
			ctx = context.WithValue(ctx, httpx.CtxKeyUserID, id.ID)
			ctx = context.WithValue(ctx, httpx.CtxKeyUsername, id.Username)
			ctx = context.WithValue(ctx, httpx.CtxKeyRole, id.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates a route to admin callers. Must run after RequireAuth.
func RequireAdmin() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !identityFromCtx(r.Context()).IsAdmin() {
				writeServiceError(r.Context(), w, service.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
