package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines user, OAuth account, and session persistence.
// Lookup methods return nil (not an error) when no row matches; insert
// methods return ErrConflict-wrapped errors on unique violations.
type Repository interface {
	// User operations
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user User) (User, error)

	// OAuth account operations
	FindOAuthAccount(ctx context.Context, provider Provider, providerUserID string) (*OAuthAccount, error)
	CreateOAuthAccount(ctx context.Context, account OAuthAccount) error
	// CreateUserWithOAuthAccount inserts both rows in a single
	// transaction so a failed link never leaves an orphaned user.
	CreateUserWithOAuthAccount(ctx context.Context, user User, account OAuthAccount) (User, error)

	// Session operations
	CreateSession(ctx context.Context, session Session) error
	FindSessionWithUser(ctx context.Context, sessionID string) (*Session, *User, error)
	UpdateSessionExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}
