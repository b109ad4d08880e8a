package auth

import "time"

// User is a registered account holder.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	Enabled      bool
	Locked       bool
	CreatedAt    time.Time
	ConfirmedAt  *time.Time
}

// TokenPair carries freshly issued access and refresh tokens.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// RefreshToken is the persisted revocation record for an issued refresh token.
// The ID is the token's jti claim; only a hash of the token itself is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// ConfirmationToken is a single-use token mailed out after registration.
type ConfirmationToken struct {
	Token       string
	UserID      string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// Principal is an authenticated user with the resolved permission set.
type Principal struct {
	User        *User
	Permissions map[Permission]struct{}
}

// NewPrincipal resolves the permission set from the user's role.
func NewPrincipal(user *User) Principal {
	perms := user.Role.Permissions()
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return Principal{User: user, Permissions: set}
}

// HasPermission reports whether the principal holds the permission.
func (p Principal) HasPermission(perm Permission) bool {
	_, ok := p.Permissions[perm]
	return ok
}

// HasAnyPermission reports whether the principal holds at least one of the
// given permissions.
func (p Principal) HasAnyPermission(perms ...Permission) bool {
	for _, perm := range perms {
		if p.HasPermission(perm) {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal carries the role.
func (p Principal) HasRole(role Role) bool {
	return p.User != nil && p.User.Role == role
}
