package service

import (
	"context"

	"github.com/quartzlab/depot/internal/depot/domain"
)

// Session is the authentication surface. Two implementations exist: a
// local one that owns credentials and refresh-token records, and a
// delegated one that proxies grants to a Keycloak realm. Handlers only
// see this interface; the rest of the system never cares which mode is
// active.
type Session interface {
	// Login exchanges username/password for a token pair.
	Login(ctx context.Context, username, password string) (domain.TokenPair, error)

	// Refresh rotates a refresh token for a fresh pair. The presented
	// token is single use: concurrent refreshes race and only one wins.
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)

	// Logout invalidates a refresh token. Idempotent.
	Logout(ctx context.Context, refreshToken string) error

	// VerifyAccess checks an access token and returns the caller identity.
	VerifyAccess(ctx context.Context, accessToken string) (domain.Identity, error)

	// CurrentUser resolves the full identity behind an access token,
	// enriched from the user store where one exists. A verified token
	// whose account has since been deleted reports not-found rather
	// than an authentication failure.
	CurrentUser(ctx context.Context, accessToken string) (domain.Identity, error)
}
