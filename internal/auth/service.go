package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Sessions live for 30 days. A session validated inside the back
	// half of that window (the final 15 days) is renewed to a full TTL
	// again, so active users stay signed in without a database write on
	// every request.
	sessionTTL           = 30 * 24 * time.Hour
	sessionRenewalWindow = 15 * 24 * time.Hour
)

// Service owns the session token lifecycle, credential sign-in, and
// account linking. One instance is constructed at startup and injected
// everywhere a request needs it.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates the auth Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// CreateSession mints a session for the user. The raw bearer token is
// returned exactly once; only its hash is persisted.
func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID) (SessionToken, error) {
	token, err := GenerateToken()
	if err != nil {
		return SessionToken{}, err
	}

	now := s.now()
	session := Session{
		ID:        SessionIDFromToken(token),
		UserID:    userID,
		ExpiresAt: now.Add(sessionTTL),
		CreatedAt: now,
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return SessionToken{}, fmt.Errorf("create session: %w", err)
	}

	return SessionToken{Session: session, Token: token}, nil
}

// ValidateSessionToken resolves a bearer token to its session and user.
// Unknown tokens fail with ErrSessionNotFound. Expired sessions are
// deleted on sight and fail with ErrSessionExpired. A session validated
// in the back half of its lifetime has its expiry pushed out to a full
// TTL before being returned.
func (s *Service) ValidateSessionToken(ctx context.Context, token string) (*Session, *User, error) {
	session, user, err := s.repo.FindSessionWithUser(ctx, SessionIDFromToken(token))
	if err != nil {
		return nil, nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil || user == nil {
		return nil, nil, ErrSessionNotFound
	}

	now := s.now()
	if !now.Before(session.ExpiresAt) {
		// Racing a concurrent renewal is fine: last write wins, and an
		// expired session is unusable either way.
		if err := s.repo.DeleteSession(ctx, session.ID); err != nil {
			s.logger.Warn("delete expired session", "error", err)
		}
		return nil, nil, ErrSessionExpired
	}

	if !now.Before(session.ExpiresAt.Add(-sessionRenewalWindow)) {
		session.ExpiresAt = now.Add(sessionTTL)
		if err := s.repo.UpdateSessionExpiry(ctx, session.ID, session.ExpiresAt); err != nil {
			return nil, nil, fmt.Errorf("renew session: %w", err)
		}
	}

	return session, user, nil
}

// InvalidateSession deletes the session. Deleting an already-absent
// session is not an error.
func (s *Service) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes every expired session row.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx)
}

// SignUp registers an email/password account and signs it in. A
// duplicate email surfaces as an ErrConflict-wrapped error.
func (s *Service) SignUp(ctx context.Context, name, email, password string) (SessionToken, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return SessionToken{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := User{
		ID:             uuid.New(),
		Name:           name,
		Email:          normalizeEmail(email),
		PasswordHash:   hash,
		Role:           RoleNormal,
		RewardEligible: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return SessionToken{}, fmt.Errorf("create user: %w", err)
	}

	return s.CreateSession(ctx, created.ID)
}

// SignIn verifies an email/password pair and mints a session. Unknown
// email, OAuth-only accounts, and wrong passwords all return
// ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, email, password string) (SessionToken, error) {
	user, err := s.repo.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return SessionToken{}, fmt.Errorf("find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return SessionToken{}, ErrInvalidCredentials
	}

	ok, err := VerifyPassword(user.PasswordHash, password)
	if err != nil {
		s.logger.Error("verify password", "error", err)
		return SessionToken{}, ErrInvalidCredentials
	}
	if !ok {
		return SessionToken{}, ErrInvalidCredentials
	}

	return s.CreateSession(ctx, user.ID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
