package auth

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies an external OAuth identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
	ProviderApple  Provider = "apple"
)

// ParseProvider maps a URL parameter onto a known provider.
func ParseProvider(value string) (Provider, bool) {
	switch Provider(value) {
	case ProviderGoogle, ProviderGitHub, ProviderApple:
		return Provider(value), true
	}
	return "", false
}

// RequiresPKCE reports whether the provider's redirect flow carries a
// PKCE code verifier.
func (p Provider) RequiresPKCE() bool {
	return p == ProviderGoogle
}

// Role classifies a user account.
type Role string

const (
	RoleNormal      Role = "normal"
	RoleCooperative Role = "cooperative"
	RoleAdmin       Role = "admin"
)

// User is a local account. PasswordHash is empty for OAuth-only
// accounts.
type User struct {
	ID              uuid.UUID
	Name            string
	Email           string
	PasswordHash    string
	EmailVerifiedAt *time.Time
	AvatarURL       string
	Role            Role
	Points          int64
	RewardEligible  bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EmailVerified reports whether the account's email has been verified.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// Session is an active authentication grant. ID is the SHA-256 hex
// digest of the bearer token; the raw token is never stored.
type Session struct {
	ID        string
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// OAuthAccount links an external identity to a local user. The
// (Provider, ProviderUserID) pair is the primary key: one external
// identity maps to at most one local user.
type OAuthAccount struct {
	Provider       Provider
	ProviderUserID string
	UserID         uuid.UUID
	CreatedAt      time.Time
}

// Identity is a verified external profile produced by a provider
// adapter.
type Identity struct {
	Provider       Provider
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	AvatarURL      string
}

// SessionToken pairs a freshly created session with its raw bearer
// token. The token leaves the process exactly once, in this struct.
type SessionToken struct {
	Session Session
	Token   string
}
