package auth

import "strings"

type Role string

const (
	// RoleAdmin may create, edit and delete events.
	RoleAdmin Role = "admin"
	// RoleMember is a committee member account without write access.
	RoleMember Role = "member"
)

// NormalizeRole maps unknown roles to the least privileged one.
func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleAdmin):
		return RoleAdmin
	default:
		return RoleMember
	}
}

func IsAdmin(role string) bool {
	return NormalizeRole(role) == RoleAdmin
}
