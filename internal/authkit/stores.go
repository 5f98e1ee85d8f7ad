package authkit

import (
	"context"
	"time"
)

// UserStore persists and retrieves application users.
type UserStore interface {
	// FindByEmail returns ErrUserNotFound when no user has the exact email.
	FindByEmail(ctx context.Context, email string) (User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Create assigns an id and persists the user with its roles atomically.
	// It returns ErrUserExists when the email is already taken.
	Create(ctx context.Context, user User) (User, error)
}

// RoleStore looks up the seeded role table.
type RoleStore interface {
	// FindRoleByName returns ErrRoleNotFound when the role was never seeded.
	FindRoleByName(ctx context.Context, name RoleID) (Role, error)
}

// TokenDenyList remembers revoked session token ids until they expire.
type TokenDenyList interface {
	Deny(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsDenied(ctx context.Context, tokenID string) (bool, error)
}
