package jwtx

import (
	"os"
	"strings"
)

// Signer is our interface for anything that can sign bearer credentials.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// ResolveKeyMaterial decides what the configured key material actually is.
// The value may be an inline PEM block, a path to a PEM file, or a shared
// secret. Returns the PEM bytes when asymmetric material was found,
// otherwise nil and the original value to be used as a symmetric secret.
func ResolveKeyMaterial(value string) (pemBytes []byte, secret string) {
	if strings.Contains(value, "-----BEGIN") {
		return []byte(value), ""
	}

	if data, err := os.ReadFile(value); err == nil {
		if strings.Contains(string(data), "-----BEGIN") {
			return data, ""
		}
	}

	return nil, value
}

// NewCodec builds a matched signer/verifier pair from configured key
// material, asymmetric-first: PEM material (inline or on disk) selects
// RS256, anything else falls back to HS256 keyed by the shared secret.
// The returned verifier is pinned to the single algorithm implied by the
// key type, so a symmetric-signed token is never accepted when an
// asymmetric key is configured and vice versa.
func NewCodec(material, issuer string) (Signer, Verifier, error) {
	pemBytes, secret := ResolveKeyMaterial(material)

	if pemBytes != nil {
		signer, err := newRS256Signer(pemBytes)
		if err != nil {
			return nil, nil, err
		}
		return signer, NewVerifierRS256(signer.Public(), issuer), nil
	}

	signer := newHS256Signer([]byte(secret))
	return signer, NewVerifierHS256([]byte(secret), issuer), nil
}
