package service

import "github.com/quartzlab/depot/internal/depot/domain"

// CanDelete reports whether id may remove an object owned by ownerID.
// Admins may remove anything. A nil owner marks an object that predates
// ownership tracking or was written without a resolvable identity; those
// stay removable by any authenticated user.
func CanDelete(id domain.Identity, ownerID *string) bool {
	if id.IsAdmin() {
		return true
	}
	if ownerID == nil {
		return true
	}
	return *ownerID == id.ID
}
