package auth

import "strings"

// Role gates access to the admin endpoints
type Role string

const (
	// RoleAdmin can change providers and models
	RoleAdmin Role = "admin"

	// RoleViewer can list providers, models and recent chat logs
	RoleViewer Role = "viewer"
)

func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role has permission for a required role.
// Admin implies viewer.
func (r Role) HasPermission(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}

// ParseRoles splits a comma separated list such as "admin,viewer".
func ParseRoles(s string) ([]Role, error) {
	var roles []Role
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r := Role(strings.ToLower(part))
		if !r.IsValid() {
			return nil, &invalidRoleError{role: part}
		}
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		return nil, ErrNoRoles
	}
	return roles, nil
}

type invalidRoleError struct {
	role string
}

func (e *invalidRoleError) Error() string {
	return "invalid role: " + e.role
}
