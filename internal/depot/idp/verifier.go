package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quartzlab/depot/pkg/jwtx"
)

// Verifier checks realm-issued access tokens against the realm's
// published signing keys. Keys are cached and refreshed on demand when a
// token arrives with an unknown kid (realm key rotation).
type Verifier struct {
	cfg       Config
	endpoints Endpoints
	client    *Client
	parser    *jwt.Parser

	mu   sync.Mutex
	keys *jwtx.KeySet
}

func NewVerifier(cfg Config, client *Client) *Verifier {
	return &Verifier{
		cfg:       cfg,
		endpoints: cfg.Endpoints(),
		client:    client,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{
				jwt.SigningMethodRS256.Alg(),
				jwt.SigningMethodES256.Alg(),
			}),
		),
		keys: jwtx.NewKeySet(),
	}
}

// Verify checks the token signature, expiry, issuer, and audience, and
// returns the realm claims on success.
func (v *Verifier) Verify(ctx context.Context, tokenStr string) (Claims, error) {
	claims, err := v.parse(tokenStr)
	if errors.Is(err, jwtx.ErrNoKey) {
		// Unknown kid; the realm may have rotated. Refresh once.
		if rerr := v.refreshKeys(ctx); rerr != nil {
			return Claims{}, rerr
		}
		claims, err = v.parse(tokenStr)
	}
	if err != nil {
		return Claims{}, err
	}

	if claims.Issuer != v.endpoints.Issuer {
		return Claims{}, jwtx.ErrIssuer
	}

	if !v.audienceAllowed(claims) {
		return Claims{}, jwtx.ErrAudience
	}

	return *claims, nil
}

func (v *Verifier) parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}

	_, err := v.parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, jwtx.ErrNoKey
		}
		return v.getKey(kid)
	})
	if err != nil {
		switch {
		case errors.Is(err, jwtx.ErrNoKey):
			return nil, jwtx.ErrNoKey
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, jwtx.ErrExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, jwtx.ErrMalformed
		}
		return nil, jwtx.ErrInvalidSig
	}

	return claims, nil
}

// audienceAllowed accepts tokens addressed to our client, to the realm's
// builtin "account" client, or issued via our client as authorized party.
// Keycloak fills these differently depending on client scope mappers.
func (v *Verifier) audienceAllowed(c *Claims) bool {
	if slices.Contains(c.Audience, v.cfg.ClientID) ||
		slices.Contains(c.Audience, "account") {
		return true
	}
	return c.AuthorizedParty == v.cfg.ClientID
}

// Ready reports whether the realm's signing keys are loaded, fetching
// them once when the cache is still empty.
func (v *Verifier) Ready(ctx context.Context) bool {
	v.mu.Lock()
	loaded := v.keys.IsReady()
	v.mu.Unlock()
	if loaded {
		return true
	}

	if err := v.refreshKeys(ctx); err != nil {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.keys.IsReady()
}

func (v *Verifier) getKey(kid string) (any, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.keys.Get(kid)
}

func (v *Verifier) refreshKeys(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, err := v.client.FetchJWKS(ctx)
	if err != nil {
		return err
	}

	var jwks jwtx.JWKS
	if err := json.Unmarshal(raw, &jwks); err != nil {
		return fmt.Errorf("%w: decoding jwks: %v", ErrUpstream, err)
	}

	return v.keys.ResetFromJWKS(jwks)
}
