package auth

import (
	"context"
	"time"
)

// Adapter calls to external providers get a bounded deadline so a hung
// token exchange cannot hold a request handler open indefinitely.
const providerTimeout = 10 * time.Second

// ProviderInput carries what an adapter needs to turn a callback or a
// native-SDK credential into a session.
type ProviderInput struct {
	// Code is the authorization code from the redirect flow.
	Code string
	// CodeVerifier is the PKCE verifier (Google redirect flow only).
	CodeVerifier string
	// IDToken is a pre-obtained identity token from a native SDK flow;
	// when set, Code and CodeVerifier are ignored.
	IDToken string
	// Name is the display name supplied alongside a native credential.
	// Apple only sends the user's name on first authorization, outside
	// the identity token.
	Name string
	// SessionToken optionally links the identity to the currently
	// signed-in user.
	SessionToken string
}

// ProviderAdapter is implemented once per external identity provider.
// All three implementations verify provider credentials their own way,
// then delegate to the shared account linking resolver.
type ProviderAdapter interface {
	// AuthorizationURL builds the provider's consent redirect URL.
	// codeVerifier is consulted only by providers that require PKCE.
	AuthorizationURL(state, codeVerifier string) string

	// CreateSession verifies the provider credential, resolves the
	// external identity onto a local account, and returns a fresh
	// session. Expected failures come back as *CreateSessionError.
	CreateSession(ctx context.Context, in ProviderInput) (SessionToken, error)
}

// IdentityResolver is the slice of *Service the adapters depend on.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, in LinkInput) (SessionToken, error)
}
