package service

import (
	"context"
	"fmt"
	"time"

	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/store"
	"github.com/quartzlab/depot/pkg/cryptox"
	"github.com/quartzlab/depot/pkg/idx"
	"github.com/quartzlab/depot/pkg/jwtx"
	"github.com/quartzlab/depot/pkg/slogx"
)

// Bootstrap seeds the initial accounts on an empty database. Only
// meaningful in local auth mode; delegated mode has no local users.
type Bootstrap struct {
	Store store.Store
}

// Run creates the seed admin and regular user when the user table is
// empty. Reruns on a populated database are no-ops, so it is safe to
// call on every startup.
func (s *Bootstrap) Run(ctx context.Context, data domain.BootstrapData) error {
	l := slogx.FromContext(ctx)

	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}

	seed := []struct {
		username string
		password string
		role     string
	}{
		{data.AdminUsername, data.AdminPassword, jwtx.RoleAdmin},
		{data.UserUsername, data.UserPassword, jwtx.RoleUser},
	}

	now := time.Now().UTC()
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		for _, u := range seed {
			if u.username == "" || u.password == "" {
				continue
			}

			hash, err := cryptox.HashPassword(u.password)
			if err != nil {
				return fmt.Errorf("hashing seed password: %w", err)
			}

			id := idx.New().String()
			err = tx.Users().CreateUser(ctx, domain.User{
				ID:           id,
				Username:     u.username,
				PasswordHash: hash,
				Role:         u.role,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			if err != nil {
				return fmt.Errorf("creating seed user %q: %w", u.username, err)
			}

			l.Info("seeded user", "user_id", id, "username", u.username, "role", u.role)
		}
		return nil
	})
}
