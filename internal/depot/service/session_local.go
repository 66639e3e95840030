package service

import (
	"context"
	"errors"
	"time"

	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/store"
	"github.com/quartzlab/depot/pkg/cryptox"
	"github.com/quartzlab/depot/pkg/jwtx"
	"github.com/quartzlab/depot/pkg/slogx"
)

// Compile-time interface check.
var _ Session = (*LocalSession)(nil)

// LocalSession issues and verifies credentials against the local user
// store. Both tokens are JWTs; refresh tokens additionally have a durable
// twin record keyed by their fingerprint, which is what makes them
// revocable and single use.
type LocalSession struct {
	Store      store.Store
	Signer     jwtx.Signer
	Verifier   jwtx.Verifier
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

func (s *LocalSession) Login(ctx context.Context, username, password string) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn comparable time so missing users and wrong passwords
			// are indistinguishable to a caller
			_ = cryptox.VerifyPassword(password, cryptox.DummyHash)
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		l.Info("password verification failed", "username", username)
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	now := time.Now()

	pair, record, err := s.mint(u, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, record); err != nil {
		return domain.TokenPair{}, err
	}

	return pair, nil
}

func (s *LocalSession) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	now := time.Now()

	// 1. The presented token must verify as one of ours
	claims, err := s.Verifier.Verify(refreshToken)
	if err != nil {
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	// 2. And its durable twin must still exist
	fp := cryptox.FingerprintToken(refreshToken)

	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}

	if rt.Expired(now) {
		// Lazy cleanup; housekeeping would get it eventually
		_ = s.Store.RefreshTokens().DeleteRefreshToken(ctx, fp)
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	if rt.UserID != claims.Subject {
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	// 3. Re-read the user so role changes take effect on rotation
	u, err := s.Store.Users().GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}

	pair, record, err := s.mint(u, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	// 4. Rotate atomically: whoever deletes the old record wins, every
	// other concurrent refresh of the same token fails closed
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().DeleteRefreshToken(ctx, fp); err != nil {
			return err
		}
		return tx.RefreshTokens().CreateRefreshToken(ctx, record)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}

	return pair, nil
}

func (s *LocalSession) Logout(ctx context.Context, refreshToken string) error {
	fp := cryptox.FingerprintToken(refreshToken)

	err := s.Store.RefreshTokens().DeleteRefreshToken(ctx, fp)
	if errors.Is(err, store.ErrNotFound) {
		return nil // already gone; logout is idempotent
	}
	return err
}

func (s *LocalSession) VerifyAccess(ctx context.Context, accessToken string) (domain.Identity, error) {
	claims, err := s.Verifier.Verify(accessToken)
	if err != nil {
		return domain.Identity{}, ErrInvalidAccess
	}

	id := domain.Identity{
		ID:       claims.Subject,
		Username: claims.Username,
		Role:     claims.Role,
	}
	if claims.IssuedAt != nil {
		t := claims.IssuedAt.Time.UTC()
		id.CreatedAt = &t
	}

	return id, nil
}

func (s *LocalSession) CurrentUser(ctx context.Context, accessToken string) (domain.Identity, error) {
	id, err := s.VerifyAccess(ctx, accessToken)
	if err != nil {
		return domain.Identity{}, err
	}

	u, err := s.Store.Users().GetUserByID(ctx, id.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Token outlived the account. The token itself verified, so
			// this is a missing resource, not an authentication failure.
			return domain.Identity{}, ErrNotFound
		}
		return domain.Identity{}, err
	}

	created := u.CreatedAt.UTC()

	return domain.Identity{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: &created,
	}, nil
}

// mint builds a token pair and the refresh token's durable record.
func (s *LocalSession) mint(u domain.User, now time.Time) (domain.TokenPair, domain.RefreshToken, error) {
	access, err := s.Signer.Sign(jwtx.NewClaims(u.ID, u.Username, u.Role, s.AccessTTL, s.Issuer, now))
	if err != nil {
		return domain.TokenPair{}, domain.RefreshToken{}, err
	}

	refresh, err := s.Signer.Sign(jwtx.NewClaims(u.ID, u.Username, u.Role, s.RefreshTTL, s.Issuer, now))
	if err != nil {
		return domain.TokenPair{}, domain.RefreshToken{}, err
	}

	pair := domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessTTL.Seconds()),
	}

	record := domain.RefreshToken{
		TokenHash: cryptox.FingerprintToken(refresh),
		UserID:    u.ID,
		ExpiresAt: now.Add(s.RefreshTTL),
	}

	return pair, record, nil
}
