package model

import "time"

// User represents an authenticated actor: a lab administrator, an agency
// account, or a regular field user.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	AgencyID     string     `json:"agency_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleLabAdmin = "lab_admin"
	RoleAgency   = "agency"
	RoleUser     = "user"
)

// ValidRole reports whether role is a known role.
func ValidRole(role string) bool {
	switch role {
	case RoleLabAdmin, RoleAgency, RoleUser:
		return true
	}
	return false
}
