package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// LinkInput carries a verified external identity into the account
// linking decision. SessionToken, when set, is an existing session of
// an already signed-in user who wants this identity attached to their
// account.
type LinkInput struct {
	Identity     Identity
	SessionToken string
}

// ResolveIdentity decides how a verified external identity maps onto a
// local account and returns a fresh session for the resulting user.
//
// Precedence, in order:
//
//  1. An OAuthAccount already bound to (provider, providerUserID) wins
//     outright. Its owner gets the session, even when a session token
//     for a different user was supplied.
//  2. Otherwise an existing user, resolved from the session token if
//     one was supplied and valid, else by the identity's email, gets
//     the identity linked. Linking by email requires both the local
//     email and the external email to be verified.
//  3. Otherwise a brand-new user is created from the external profile,
//     with the OAuth account inserted in the same transaction.
func (s *Service) ResolveIdentity(ctx context.Context, in LinkInput) (SessionToken, error) {
	identity := in.Identity

	account, err := s.repo.FindOAuthAccount(ctx, identity.Provider, identity.ProviderUserID)
	if err != nil {
		return SessionToken{}, fmt.Errorf("find oauth account: %w", err)
	}
	if account != nil {
		return s.CreateSession(ctx, account.UserID)
	}

	var existing *User
	if in.SessionToken != "" {
		// A valid session pins the target account regardless of email;
		// an invalid one falls through to the email lookup.
		if _, user, err := s.ValidateSessionToken(ctx, in.SessionToken); err == nil {
			existing = user
		}
	}
	if existing == nil {
		existing, err = s.repo.FindUserByEmail(ctx, normalizeEmail(identity.Email))
		if err != nil {
			return SessionToken{}, fmt.Errorf("find user by email: %w", err)
		}
	}

	now := s.now()

	if existing != nil && existing.EmailVerified() && identity.EmailVerified {
		err := s.repo.CreateOAuthAccount(ctx, OAuthAccount{
			Provider:       identity.Provider,
			ProviderUserID: identity.ProviderUserID,
			UserID:         existing.ID,
			CreatedAt:      now,
		})
		if err != nil {
			if errors.Is(err, ErrConflict) {
				return SessionToken{}, createSessionErrorf("account already linked")
			}
			return SessionToken{}, fmt.Errorf("link oauth account: %w", err)
		}
		return s.CreateSession(ctx, existing.ID)
	}

	user := User{
		ID:             uuid.New(),
		Name:           identity.Name,
		Email:          normalizeEmail(identity.Email),
		AvatarURL:      identity.AvatarURL,
		Role:           RoleNormal,
		RewardEligible: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if identity.EmailVerified {
		verifiedAt := now
		user.EmailVerifiedAt = &verifiedAt
	}

	created, err := s.repo.CreateUserWithOAuthAccount(ctx, user, OAuthAccount{
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderUserID,
		UserID:         user.ID,
		CreatedAt:      now,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// Typically an unverified local account already holds this
			// email. Surfaced generically: the caller learns nothing
			// about which constraint tripped.
			return SessionToken{}, createSessionErrorf("could not create account")
		}
		return SessionToken{}, fmt.Errorf("create user: %w", err)
	}

	return s.CreateSession(ctx, created.ID)
}
