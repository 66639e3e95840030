package jwtx

// JWK represents a public key in JSON Web Key format (RFC 7517). It is
// algorithm-neutral so we can hold whatever an identity provider publishes.
type JWK struct {
	Kty string `json:"kty"`           // key type: "RSA", "EC"
	Use string `json:"use,omitempty"` // what it is used for: "sig", "enc"
	Alg string `json:"alg,omitempty"` // algorithm: "RS256", "ES256"
	Kid string `json:"kid,omitempty"` // key ID

	// RSA fields
	N string `json:"n,omitempty"` // modulus (base64url)
	E string `json:"e,omitempty"` // exponent (base64url)

	// EC fields
	Crv string `json:"crv,omitempty"` // curve: "P-256"
	X   string `json:"x,omitempty"`   // base64url x-coordinate
	Y   string `json:"y,omitempty"`   // base64url y-coordinate
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}
