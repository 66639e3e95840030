package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestBootstrapSeedsOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	b := &service.Bootstrap{Store: st}
	data := domain.BootstrapData{
		AdminUsername: "root",
		AdminPassword: "root-pw",
		UserUsername:  "demo",
		UserPassword:  "demo-pw",
	}

	require.NoError(t, b.Run(ctx, data))

	adminUser, err := st.Users().GetUserByUsername(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, jwtx.RoleAdmin, adminUser.Role)

	regular, err := st.Users().GetUserByUsername(ctx, "demo")
	require.NoError(t, err)
	require.Equal(t, jwtx.RoleUser, regular.Role)

	t.Run("seeded credentials log in", func(t *testing.T) {
		s := newLocalSession(t, st)

		_, err := s.Login(ctx, "root", "root-pw")
		require.NoError(t, err)
		_, err = s.Login(ctx, "demo", "demo-pw")
		require.NoError(t, err)
	})

	t.Run("rerun is a no-op", func(t *testing.T) {
		again := domain.BootstrapData{AdminUsername: "other", AdminPassword: "x"}
		require.NoError(t, b.Run(ctx, again))

		_, err := st.Users().GetUserByUsername(ctx, "other")
		require.Error(t, err)
	})
}

func TestBootstrapSkipsBlankSeeds(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	b := &service.Bootstrap{Store: st}
	require.NoError(t, b.Run(ctx, domain.BootstrapData{
		AdminUsername: "root",
		AdminPassword: "root-pw",
	}))

	_, err := st.Users().GetUserByUsername(ctx, "root")
	require.NoError(t, err)

	empty, err := st.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)
}

func TestHousekeepingSweep(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, st, "sweeper", "pw", jwtx.RoleUser)

	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		TokenHash: "expired-hash",
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		TokenHash: "live-hash",
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hk := service.NewHousekeeping(st, logger, time.Hour)

	// Start runs an immediate sweep.
	hk.Start()
	hk.Stop()

	_, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "expired-hash")
	require.Error(t, err)

	_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "live-hash")
	require.NoError(t, err)
}
