package domain

import (
	"time"

	"github.com/quartzlab/depot/pkg/jwtx"
)

type User struct {
	ID           string
	Username     string
	PasswordHash string // argon2 encoded
	Role         string // "admin" or "user"
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the authenticated caller as seen by the rest of the system,
// regardless of which identity backend produced it.
type Identity struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == jwtx.RoleAdmin
}
