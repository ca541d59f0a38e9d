package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer may read devices, status and the audit log.
	RoleViewer Role = "viewer"

	// RoleOperator may also send commands and start transfers.
	RoleOperator Role = "operator"

	// RoleAdmin may also control discovery and transport settings.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if v == r {
			return true
		}
	}
	return false
}

// Errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrForbidden    = errors.New("insufficient permissions")
)
