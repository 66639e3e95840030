package domain

import "time"

// TokenPair is what the session endpoints return: a short-lived access
// token (JWT) and the longer-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType,omitempty"` // typically "Bearer"
	ExpiresIn    int64  `json:"expiresIn"`           // seconds until access token expiry
}

// RefreshToken models the stored refresh token record in the DB. Only a
// fingerprint of the presented token is ever persisted.
type RefreshToken struct {
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
