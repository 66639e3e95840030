// Package idp talks to Keycloak when the service runs in delegated
// authentication mode. Passwords and refresh tokens live in the realm;
// we only verify what it issues and map its claims onto our identity.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrInvalidGrant = errors.New("idp: invalid grant")
	ErrUpstream     = errors.New("idp: upstream failure")
)

// Config is the raw Keycloak configuration. Derived endpoint URLs come
// from Endpoints().
type Config struct {
	BaseURL      string // e.g. https://sso.example.com
	Realm        string
	ClientID     string
	ClientSecret string // empty for public clients
}

// Endpoints are the resolved OpenID Connect endpoints for the realm.
type Endpoints struct {
	Issuer   string
	Token    string
	Logout   string
	UserInfo string
	JWKS     string
}

func (c Config) Endpoints() Endpoints {
	realm := strings.TrimRight(c.BaseURL, "/") + "/realms/" + c.Realm

	return Endpoints{
		Issuer:   realm,
		Token:    realm + "/protocol/openid-connect/token",
		Logout:   realm + "/protocol/openid-connect/logout",
		UserInfo: realm + "/protocol/openid-connect/userinfo",
		JWKS:     realm + "/protocol/openid-connect/certs",
	}
}

// TokenResponse is the relevant subset of Keycloak's token endpoint reply.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// Client wraps the realm's OAuth endpoints.
type Client struct {
	cfg       Config
	endpoints Endpoints
	http      *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:       cfg,
		endpoints: cfg.Endpoints(),
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// PasswordGrant exchanges username/password for a token pair using the
// resource owner password credentials grant.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (TokenResponse, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {c.cfg.ClientID},
		"username":   {username},
		"password":   {password},
		"scope":      {"openid"},
	}
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	return c.tokenRequest(ctx, form)
}

// RefreshGrant exchanges a refresh token for a fresh pair.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"refresh_token": {refreshToken},
	}
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	return c.tokenRequest(ctx, form)
}

// Logout invalidates a refresh token at the realm. Errors are returned
// but callers treat them as best-effort.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"refresh_token": {refreshToken},
	}
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoints.Logout, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return fmt.Errorf("%w: logout returned %s", ErrUpstream, res.Status)
	}
	return nil
}

// FetchJWKS downloads the realm's current signing keys.
func (c *Client) FetchJWKS(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.JWKS, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: jwks returned %s", ErrUpstream, res.Status)
	}

	return io.ReadAll(res.Body)
}

func (c *Client) tokenRequest(ctx context.Context, form url.Values) (TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoints.Token, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer res.Body.Close()

	// 401 is what Keycloak returns for bad credentials on the password
	// grant; 400 covers expired or reused refresh tokens.
	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusBadRequest {
		return TokenResponse{}, ErrInvalidGrant
	}
	if res.StatusCode != http.StatusOK {
		return TokenResponse{}, fmt.Errorf("%w: token endpoint returned %s", ErrUpstream, res.Status)
	}

	var tok TokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return TokenResponse{}, fmt.Errorf("%w: decoding token response: %v", ErrUpstream, err)
	}
	return tok, nil
}
