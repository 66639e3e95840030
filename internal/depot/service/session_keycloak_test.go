package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quartzlab/depot/internal/depot/idp"
	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/stretchr/testify/require"
)

// stubRealm is just enough of a Keycloak token endpoint for error
// mapping tests. Token verification is covered in the idp package.
func stubRealm(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newKeycloakSession(srv *httptest.Server) *service.KeycloakSession {
	cfg := idp.Config{BaseURL: srv.URL, Realm: "depot", ClientID: "depot-api"}
	client := idp.NewClient(cfg)
	return &service.KeycloakSession{
		Client:   client,
		Verifier: idp.NewVerifier(cfg, client),
	}
}

func TestKeycloakSessionLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("success maps the token response", func(t *testing.T) {
		srv := stubRealm(t, http.StatusOK,
			`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":300}`)
		s := newKeycloakSession(srv)

		pair, err := s.Login(ctx, "alice", "pw")
		require.NoError(t, err)
		require.Equal(t, "at", pair.AccessToken)
		require.Equal(t, "rt", pair.RefreshToken)
		require.Equal(t, "Bearer", pair.TokenType)
		require.Equal(t, int64(300), pair.ExpiresIn)
	})

	t.Run("realm rejection becomes invalid credentials", func(t *testing.T) {
		srv := stubRealm(t, http.StatusUnauthorized, `{"error":"invalid_grant"}`)
		s := newKeycloakSession(srv)

		_, err := s.Login(ctx, "alice", "wrong")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	})

	t.Run("realm outage surfaces as upstream", func(t *testing.T) {
		srv := stubRealm(t, http.StatusBadGateway, "")
		s := newKeycloakSession(srv)

		_, err := s.Login(ctx, "alice", "pw")
		require.ErrorIs(t, err, service.ErrUpstream)
	})
}

func TestKeycloakSessionRefresh(t *testing.T) {
	ctx := context.Background()

	srv := stubRealm(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	s := newKeycloakSession(srv)

	_, err := s.Refresh(ctx, "stale")
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
}

func TestKeycloakSessionLogoutBestEffort(t *testing.T) {
	ctx := context.Background()

	srv := stubRealm(t, http.StatusInternalServerError, "")
	s := newKeycloakSession(srv)

	// Realm failures never block logout.
	require.NoError(t, s.Logout(ctx, "whatever"))
}
