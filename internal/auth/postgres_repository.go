package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, name, email, password_hash, email_verified_at, avatar_url, role, points, reward_eligible, created_at, updated_at`

// FindUserByID looks up a user by id.
func (r *PostgresRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toUser(), nil
}

// FindUserByEmail looks up a user by email.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toUser(), nil
}

// CreateUser inserts a new user.
func (r *PostgresRepository) CreateUser(ctx context.Context, user User) (User, error) {
	if err := insertUser(ctx, r.db, user); err != nil {
		return User{}, err
	}
	return user, nil
}

func insertUser(ctx context.Context, execer sqlx.ExecerContext, user User) error {
	const query = `
		INSERT INTO users (id, name, email, password_hash, email_verified_at, avatar_url, role, points, reward_eligible, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := execer.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.EmailVerifiedAt,
		user.AvatarURL,
		user.Role,
		user.Points,
		user.RewardEligible,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return wrapConflict(err)
}

// FindOAuthAccount looks up a link row by its composite key.
func (r *PostgresRepository) FindOAuthAccount(ctx context.Context, provider Provider, providerUserID string) (*OAuthAccount, error) {
	const query = `
		SELECT provider, provider_user_id, user_id, created_at
		FROM oauth_accounts
		WHERE provider = $1 AND provider_user_id = $2
	`

	var row oauthAccountRow
	if err := r.db.GetContext(ctx, &row, query, provider, providerUserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toAccount(), nil
}

// CreateOAuthAccount inserts a link row.
func (r *PostgresRepository) CreateOAuthAccount(ctx context.Context, account OAuthAccount) error {
	return insertOAuthAccount(ctx, r.db, account)
}

func insertOAuthAccount(ctx context.Context, execer sqlx.ExecerContext, account OAuthAccount) error {
	const query = `
		INSERT INTO oauth_accounts (provider, provider_user_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := execer.ExecContext(ctx, query,
		account.Provider,
		account.ProviderUserID,
		account.UserID,
		account.CreatedAt,
	)
	return wrapConflict(err)
}

// CreateUserWithOAuthAccount inserts the user and its link row in one
// transaction.
func (r *PostgresRepository) CreateUserWithOAuthAccount(ctx context.Context, user User, account OAuthAccount) (User, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertUser(ctx, tx, user); err != nil {
		return User{}, err
	}
	if err := insertOAuthAccount(ctx, tx, account); err != nil {
		return User{}, err
	}

	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit tx: %w", err)
	}
	return user, nil
}

// CreateSession inserts a session row keyed by the token hash.
func (r *PostgresRepository) CreateSession(ctx context.Context, session Session) error {
	const query = `
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return wrapConflict(err)
}

// FindSessionWithUser looks up a session joined with its user.
func (r *PostgresRepository) FindSessionWithUser(ctx context.Context, sessionID string) (*Session, *User, error) {
	const query = `
		SELECT
			s.id, s.user_id, s.expires_at, s.created_at,
			u.name, u.email, u.password_hash, u.email_verified_at, u.avatar_url, u.role, u.points, u.reward_eligible,
			u.created_at AS user_created_at, u.updated_at AS user_updated_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.id = $1
	`

	var row sessionUserRow
	if err := r.db.GetContext(ctx, &row, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return row.toSession(), row.toUser(), nil
}

// UpdateSessionExpiry pushes a session's expiry out.
func (r *PostgresRepository) UpdateSessionExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	const query = `UPDATE sessions SET expires_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, sessionID, expiresAt)
	return err
}

// DeleteSession removes a session. Absent rows are not an error.
func (r *PostgresRepository) DeleteSession(ctx context.Context, sessionID string) error {
	const query = `DELETE FROM sessions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, sessionID)
	return err
}

// DeleteExpiredSessions removes all expired sessions.
func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// wrapConflict maps Postgres unique violations onto ErrConflict so the
// service layer can branch on them without importing pq.
func wrapConflict(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%v: %w", err, ErrConflict)
	}
	return err
}

// userRow is a database row representation of User.
type userRow struct {
	ID              uuid.UUID  `db:"id"`
	Name            string     `db:"name"`
	Email           string     `db:"email"`
	PasswordHash    string     `db:"password_hash"`
	EmailVerifiedAt *time.Time `db:"email_verified_at"`
	AvatarURL       string     `db:"avatar_url"`
	Role            Role       `db:"role"`
	Points          int64      `db:"points"`
	RewardEligible  bool       `db:"reward_eligible"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r *userRow) toUser() *User {
	return &User{
		ID:              r.ID,
		Name:            r.Name,
		Email:           r.Email,
		PasswordHash:    r.PasswordHash,
		EmailVerifiedAt: r.EmailVerifiedAt,
		AvatarURL:       r.AvatarURL,
		Role:            r.Role,
		Points:          r.Points,
		RewardEligible:  r.RewardEligible,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type oauthAccountRow struct {
	Provider       Provider  `db:"provider"`
	ProviderUserID string    `db:"provider_user_id"`
	UserID         uuid.UUID `db:"user_id"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r *oauthAccountRow) toAccount() *OAuthAccount {
	return &OAuthAccount{
		Provider:       r.Provider,
		ProviderUserID: r.ProviderUserID,
		UserID:         r.UserID,
		CreatedAt:      r.CreatedAt,
	}
}

// sessionUserRow is a database row for the session + user join query.
type sessionUserRow struct {
	// Session fields
	ID        string    `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`

	// User fields
	Name            string     `db:"name"`
	Email           string     `db:"email"`
	PasswordHash    string     `db:"password_hash"`
	EmailVerifiedAt *time.Time `db:"email_verified_at"`
	AvatarURL       string     `db:"avatar_url"`
	Role            Role       `db:"role"`
	Points          int64      `db:"points"`
	RewardEligible  bool       `db:"reward_eligible"`
	UserCreatedAt   time.Time  `db:"user_created_at"`
	UserUpdatedAt   time.Time  `db:"user_updated_at"`
}

func (r *sessionUserRow) toSession() *Session {
	return &Session{
		ID:        r.ID,
		UserID:    r.UserID,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
	}
}

func (r *sessionUserRow) toUser() *User {
	return &User{
		ID:              r.UserID,
		Name:            r.Name,
		Email:           r.Email,
		PasswordHash:    r.PasswordHash,
		EmailVerifiedAt: r.EmailVerifiedAt,
		AvatarURL:       r.AvatarURL,
		Role:            r.Role,
		Points:          r.Points,
		RewardEligible:  r.RewardEligible,
		CreatedAt:       r.UserCreatedAt,
		UpdatedAt:       r.UserUpdatedAt,
	}
}
