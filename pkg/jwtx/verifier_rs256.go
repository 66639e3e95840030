package jwtx

import (
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"
)

// RS256Verifier validates JWTs signed with RS256. The accepted algorithm
// set is pinned: a token bearing any other "alg" header never reaches
// signature verification.
type RS256Verifier struct {
	pub    *rsa.PublicKey
	issuer string
}

// NewVerifierRS256 creates a verifier for a single RSA public key.
func NewVerifierRS256(pub *rsa.PublicKey, issuer string) *RS256Verifier {
	return &RS256Verifier{pub: pub, issuer: issuer}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *RS256Verifier) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.pub, nil
	})
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidClaim
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(); err != nil {
		return Claims{}, err
	}
	if err := claims.Validate(); err != nil {
		return Claims{}, err
	}

	return *claims, nil
}
