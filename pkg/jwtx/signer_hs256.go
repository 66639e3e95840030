package jwtx

import (
	"github.com/golang-jwt/jwt/v5"
)

// HS256Signer implements the Signer interface using HMAC SHA-256 with a
// shared secret. This is the zero-config development fallback; production
// deployments should configure a real RSA key instead.
type HS256Signer struct {
	secret []byte
}

func newHS256Signer(secret []byte) *HS256Signer {
	return &HS256Signer{secret: secret}
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}
