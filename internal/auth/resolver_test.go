package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func verifiedUser(email string) User {
	now := time.Now()
	return User{
		ID:              uuid.New(),
		Email:           email,
		EmailVerifiedAt: &now,
		Role:            RoleNormal,
	}
}

func testIdentity(provider Provider, providerUserID, email string, verified bool) Identity {
	return Identity{
		Provider:       provider,
		ProviderUserID: providerUserID,
		Email:          email,
		EmailVerified:  verified,
		Name:           "External Name",
		AvatarURL:      "https://cdn.example.com/a.png",
	}
}

func TestResolveIdentityCreatesNewUserAndLink(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)

	st, err := svc.ResolveIdentity(context.Background(), LinkInput{
		Identity: testIdentity(ProviderGoogle, "sub-1", "fresh@example.com", true),
	})
	if err != nil {
		t.Fatalf("ResolveIdentity returned error: %v", err)
	}

	_, user, err := svc.ValidateSessionToken(context.Background(), st.Token)
	if err != nil {
		t.Fatalf("ValidateSessionToken returned error: %v", err)
	}
	if user.Email != "fresh@example.com" {
		t.Fatalf("expected new user for the external email, got %q", user.Email)
	}
	if !user.EmailVerified() {
		t.Fatal("expected verified external email to mark the new account verified")
	}

	account, err := repo.FindOAuthAccount(context.Background(), ProviderGoogle, "sub-1")
	if err != nil {
		t.Fatalf("FindOAuthAccount returned error: %v", err)
	}
	if account == nil || account.UserID != user.ID {
		t.Fatalf("expected oauth account bound to new user, got %+v", account)
	}
}

func TestResolveIdentityUnverifiedExternalEmailCreatesUnverifiedUser(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)

	st, err := svc.ResolveIdentity(context.Background(), LinkInput{
		Identity: testIdentity(ProviderGitHub, "77", "shady@example.com", false),
	})
	if err != nil {
		t.Fatalf("ResolveIdentity returned error: %v", err)
	}

	_, user, err := svc.ValidateSessionToken(context.Background(), st.Token)
	if err != nil {
		t.Fatalf("ValidateSessionToken returned error: %v", err)
	}
	if user.EmailVerified() {
		t.Fatal("expected unverified external email to leave the account unverified")
	}
}

func TestResolveIdentityLinksToExistingVerifiedUser(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)
	existing := seedUser(t, repo, verifiedUser("a@x.com"))

	st, err := svc.ResolveIdentity(context.Background(), LinkInput{
		Identity: testIdentity(ProviderGitHub, "gh-9", "a@x.com", true),
	})
	if err != nil {
		t.Fatalf("ResolveIdentity returned error: %v", err)
	}

	_, user, err := svc.ValidateSessionToken(context.Background(), st.Token)
	if err != nil {
		t.Fatalf("ValidateSessionToken returned error: %v", err)
	}
	if user.ID != existing.ID {
		t.Fatal("expected session for the existing user, not a new account")
	}

	account, err := repo.FindOAuthAccount(context.Background(), ProviderGitHub, "gh-9")
	if err != nil {
		t.Fatalf("FindOAuthAccount returned error: %v", err)
	}
	if account == nil || account.UserID != existing.ID {
		t.Fatalf("expected link row for existing user, got %+v", account)
	}
}

func TestResolveIdentityExistingAccountWinsOverSessionUser(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)

	userA := seedUser(t, repo, verifiedUser("a@x.com"))
	userB := seedUser(t, repo, verifiedUser("b@x.com"))

	if err := repo.CreateOAuthAccount(context.Background(), OAuthAccount{
		Provider:       ProviderGoogle,
		ProviderUserID: "sub-a",
		UserID:         userA.ID,
	}); err != nil {
		t.Fatalf("seed oauth account: %v", err)
	}

	// userB is signed in and tries to link an identity already bound
	// to userA. The existing binding wins.
	sessionB, err := svc.CreateSession(context.Background(), userB.ID)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	st, err := svc.ResolveIdentity(context.Background(), LinkInput{
		Identity:     testIdentity(ProviderGoogle, "sub-a", "b@x.com", true),
		SessionToken: sessionB.Token,
	})
	if err != nil {
		t.Fatalf("ResolveIdentity returned error: %v", err)
	}

	_, user, err := svc.ValidateSessionToken(context.Background(), st.Token)
	if err != nil {
		t.Fatalf("ValidateSessionToken returned error: %v", err)
	}
	if user.ID != userA.ID {
		t.Fatalf("expected session for the account's owner %s, got %s", userA.ID, user.ID)
	}
}

func TestResolveIdentitySessionTokenLinksRegardlessOfEmail(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)
	signedIn := seedUser(t, repo, verifiedUser("me@x.com"))

	session, err := svc.CreateSession(context.Background(), signedIn.ID)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	// The external identity carries a completely different email.
	st, err := svc.ResolveIdentity(context.Background(), LinkInput{
		Identity:     testIdentity(ProviderGitHub, "gh-1", "other@y.com", true),
		SessionToken: session.Token,
	})
	if err != nil {
		t.Fatalf("ResolveIdentity returned error: %v", err)
	}

	_, user, err := svc.ValidateSessionToken(context.Background(), st.Token)
	if err != nil {
		t.Fatalf("ValidateSessionToken returned error: %v", err)
	}
	if user.ID != signedIn.ID {
		t.Fatal("expected identity linked to the signed-in user")
	}

	account, err := repo.FindOAuthAccount(context.Background(), ProviderGitHub, "gh-1")
	if err != nil {
		t.Fatalf("FindOAuthAccount returned error: %v", err)
	}
	if account == nil || account.UserID != signedIn.ID {
		t.Fatalf("expected link row for signed-in user, got %+v", account)
	}
}

func TestResolveIdentityUnverifiedLocalEmailDoesNotLink(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)

	// Local account exists but its email was never verified. Linking
	// by email is refused; creating a duplicate-email user fails at
	// the unique constraint and surfaces as a CreateSessionError.
	seedUser(t, repo, User{ID: uuid.New(), Email: "a@x.com"})

	_, err := svc.ResolveIdentity(context.Background(), LinkInput{
		Identity: testIdentity(ProviderGoogle, "sub-2", "a@x.com", true),
	})
	var csErr *CreateSessionError
	if !errors.As(err, &csErr) {
		t.Fatalf("expected CreateSessionError, got %v", err)
	}
}

func TestResolveIdentityExpiredSessionTokenFallsBackToEmail(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)
	existing := seedUser(t, repo, verifiedUser("a@x.com"))

	st, err := svc.ResolveIdentity(context.Background(), LinkInput{
		Identity:     testIdentity(ProviderApple, "apple-1", "a@x.com", true),
		SessionToken: "stale-or-forged",
	})
	if err != nil {
		t.Fatalf("ResolveIdentity returned error: %v", err)
	}

	_, user, err := svc.ValidateSessionToken(context.Background(), st.Token)
	if err != nil {
		t.Fatalf("ValidateSessionToken returned error: %v", err)
	}
	if user.ID != existing.ID {
		t.Fatal("expected invalid session token to fall back to email lookup")
	}
}
