package auth

import (
	"fmt"
	"strings"
)

// Role is a named bundle of permissions assigned to a user.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
)

// Permission is an atomic capability granted through a role.
type Permission string

const (
	PermAdminRead        Permission = "admin:read"
	PermAdminCreate      Permission = "admin:create"
	PermAdminUpdate      Permission = "admin:update"
	PermAdminDelete      Permission = "admin:delete"
	PermManagementRead   Permission = "management:read"
	PermManagementCreate Permission = "management:create"
	PermManagementUpdate Permission = "management:update"
	PermManagementDelete Permission = "management:delete"
)

// rolePermissions is the fixed role/permission matrix. Roles are configuration,
// not data: they are never persisted per-instance.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermAdminRead, PermAdminCreate, PermAdminUpdate, PermAdminDelete,
		PermManagementRead, PermManagementCreate, PermManagementUpdate, PermManagementDelete,
	},
	RoleManager: {
		PermManagementRead, PermManagementCreate, PermManagementUpdate, PermManagementDelete,
	},
	RoleUser: {},
}

// ParseRole normalizes a role name. The empty string maps to RoleUser.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case "":
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleManager:
		return RoleManager, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
}

// Permissions returns the permission set granted by the role.
func (r Role) Permissions() []Permission {
	perms := rolePermissions[r]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// Grants reports whether the role includes the permission.
func (r Role) Grants(p Permission) bool {
	for _, have := range rolePermissions[r] {
		if have == p {
			return true
		}
	}
	return false
}

func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}
