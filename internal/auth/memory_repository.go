package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type oauthKey struct {
	provider       Provider
	providerUserID string
}

type inMemoryRepository struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]User
	emails   map[string]uuid.UUID
	accounts map[oauthKey]OAuthAccount
	sessions map[string]Session
}

// NewInMemoryRepository creates an empty auth repository for local
// development and tests.
func NewInMemoryRepository() Repository {
	return &inMemoryRepository{
		users:    make(map[uuid.UUID]User),
		emails:   make(map[string]uuid.UUID),
		accounts: make(map[oauthKey]OAuthAccount),
		sessions: make(map[string]Session),
	}
}

func (m *inMemoryRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (m *inMemoryRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[email]
	if !ok {
		return nil, nil
	}
	user := m.users[id]
	return &user, nil
}

func (m *inMemoryRepository) CreateUser(ctx context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createUserLocked(user)
}

func (m *inMemoryRepository) createUserLocked(user User) (User, error) {
	if _, exists := m.emails[user.Email]; exists {
		return User{}, fmt.Errorf("email %q: %w", user.Email, ErrConflict)
	}
	m.users[user.ID] = user
	m.emails[user.Email] = user.ID
	return user, nil
}

func (m *inMemoryRepository) FindOAuthAccount(ctx context.Context, provider Provider, providerUserID string) (*OAuthAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[oauthKey{provider, providerUserID}]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (m *inMemoryRepository) CreateOAuthAccount(ctx context.Context, account OAuthAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createOAuthAccountLocked(account)
}

func (m *inMemoryRepository) createOAuthAccountLocked(account OAuthAccount) error {
	key := oauthKey{account.Provider, account.ProviderUserID}
	if _, exists := m.accounts[key]; exists {
		return fmt.Errorf("oauth account %s/%s: %w", account.Provider, account.ProviderUserID, ErrConflict)
	}
	m.accounts[key] = account
	return nil
}

func (m *inMemoryRepository) CreateUserWithOAuthAccount(ctx context.Context, user User, account OAuthAccount) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created, err := m.createUserLocked(user)
	if err != nil {
		return User{}, err
	}
	if err := m.createOAuthAccountLocked(account); err != nil {
		delete(m.users, created.ID)
		delete(m.emails, created.Email)
		return User{}, err
	}
	return created, nil
}

func (m *inMemoryRepository) CreateSession(ctx context.Context, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = session
	return nil
}

func (m *inMemoryRepository) FindSessionWithUser(ctx context.Context, sessionID string) (*Session, *User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil, nil
	}
	user, ok := m.users[session.UserID]
	if !ok {
		return nil, nil, nil
	}
	return &session, &user, nil
}

func (m *inMemoryRepository) UpdateSessionExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	session.ExpiresAt = expiresAt
	m.sessions[sessionID] = session
	return nil
}

func (m *inMemoryRepository) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
	return nil
}

func (m *inMemoryRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var removed int64
	for id, session := range m.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}
