package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/idp"
	"github.com/quartzlab/depot/pkg/slogx"
)

// Compile-time interface check.
var _ Session = (*KeycloakSession)(nil)

// KeycloakSession delegates the whole credential lifecycle to a Keycloak
// realm. Nothing is persisted locally; the realm owns passwords, refresh
// tokens, and revocation. We only verify what it signs.
type KeycloakSession struct {
	Client   *idp.Client
	Verifier *idp.Verifier
}

func (s *KeycloakSession) Login(ctx context.Context, username, password string) (domain.TokenPair, error) {
	tok, err := s.Client.PasswordGrant(ctx, username, password)
	if err != nil {
		if errors.Is(err, idp.ErrInvalidGrant) {
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return mapTokenResponse(tok), nil
}

func (s *KeycloakSession) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	tok, err := s.Client.RefreshGrant(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, idp.ErrInvalidGrant) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return mapTokenResponse(tok), nil
}

// Logout notifies the realm. Failures are logged and swallowed; the
// caller's session-ending side effects must happen regardless.
func (s *KeycloakSession) Logout(ctx context.Context, refreshToken string) error {
	if err := s.Client.Logout(ctx, refreshToken); err != nil {
		slogx.FromContext(ctx).Warn("realm logout failed", "err", err)
	}
	return nil
}

func (s *KeycloakSession) VerifyAccess(ctx context.Context, accessToken string) (domain.Identity, error) {
	claims, err := s.Verifier.Verify(ctx, accessToken)
	if err != nil {
		if errors.Is(err, idp.ErrUpstream) {
			return domain.Identity{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return domain.Identity{}, ErrInvalidAccess
	}

	return claims.Identity(), nil
}

// CurrentUser is identical to VerifyAccess in delegated mode: the token
// is the only identity record we have.
func (s *KeycloakSession) CurrentUser(ctx context.Context, accessToken string) (domain.Identity, error) {
	return s.VerifyAccess(ctx, accessToken)
}

func mapTokenResponse(tok idp.TokenResponse) domain.TokenPair {
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return domain.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    tok.ExpiresIn,
	}
}
