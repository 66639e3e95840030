package idp

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/pkg/jwtx"
)

// Claims are the Keycloak access token claims we care about.
type Claims struct {
	jwt.RegisteredClaims

	PreferredUsername string `json:"preferred_username,omitempty"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	AuthorizedParty   string `json:"azp,omitempty"`
	AuthTime          int64  `json:"auth_time,omitempty"`

	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// Identity maps realm claims onto our own identity model. The username
// falls back through preferred_username, name, email, and finally the
// subject, mirroring what the realm actually populates per user.
func (c *Claims) Identity() domain.Identity {
	username := c.PreferredUsername
	if username == "" {
		username = c.Name
	}
	if username == "" {
		username = c.Email
	}
	if username == "" {
		username = c.Subject
	}

	role := jwtx.RoleUser
	if slices.Contains(c.RealmAccess.Roles, "admin") {
		role = jwtx.RoleAdmin
	}

	var createdAt *time.Time
	switch {
	case c.AuthTime > 0:
		t := time.Unix(c.AuthTime, 0).UTC()
		createdAt = &t
	case c.IssuedAt != nil:
		t := c.IssuedAt.Time.UTC()
		createdAt = &t
	}

	return domain.Identity{
		ID:        c.Subject,
		Username:  username,
		Role:      role,
		CreatedAt: createdAt,
	}
}
