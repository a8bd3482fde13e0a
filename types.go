package goSession

import (
	"context"
	"time"
)

// User is the full user record hydrated on every authenticated request.
//
// The session layer only reads Username (sealed into the cookie) and Role (namespace gates).
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Nickname     string `json:"nickname"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}

// IdentityStore loads users by username.
//
// Implementations return an error wrapping [ErrUserNotFound] for unknown usernames and one
// wrapping [ErrStoreUnavailable] when the backend cannot answer. The context is the request
// context; cancellation must abort the lookup.
type IdentityStore interface {
	LookupByUsername(ctx context.Context, username string) (User, error)
}

// IdentityStoreFunc adapts a function to [IdentityStore].
type IdentityStoreFunc func(ctx context.Context, username string) (User, error)

// LookupByUsername calls f.
func (f IdentityStoreFunc) LookupByUsername(ctx context.Context, username string) (User, error) {
	return f(ctx, username)
}

// Clock returns the current time. Tests inject a fixed clock through [Builder.WithClock].
type Clock func() time.Time
