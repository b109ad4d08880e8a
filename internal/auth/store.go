package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	ConfirmationTokens(ctx context.Context) ConfirmationTokenStore
}

// UserStore manages user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	MarkConfirmed(ctx context.Context, userID string, when time.Time) error
}

// RefreshTokenStore manages refresh token revocation records, keyed by jti.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkRevokedByUser(ctx context.Context, userID string) error
}

// ConfirmationTokenStore manages single-use email confirmation tokens.
type ConfirmationTokenStore interface {
	Create(ctx context.Context, tok *ConfirmationToken) error
	Find(ctx context.Context, token string) (*ConfirmationToken, error)
	MarkConfirmed(ctx context.Context, token string, when time.Time) error
}
