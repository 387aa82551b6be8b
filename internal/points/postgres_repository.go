package points

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Balance returns the user's current point balance.
func (r *PostgresRepository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	const query = `SELECT points FROM users WHERE id = $1`

	var balance int64
	if err := r.db.GetContext(ctx, &balance, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return balance, nil
}

// History returns the user's most recent transactions, newest first.
func (r *PostgresRepository) History(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error) {
	const query = `
		SELECT id, type, from_user_id, to_user_id, points, material, created_at
		FROM point_transactions
		WHERE to_user_id = $1 OR from_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var rows []transactionRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, err
	}

	out := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toTransaction())
	}
	return out, nil
}

// CreditRecycling inserts the transaction and bumps the receiver's
// balance in one database transaction.
func (r *PostgresRepository) CreditRecycling(ctx context.Context, tx Transaction) error {
	dbTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	result, err := dbTx.ExecContext(ctx,
		`UPDATE users SET points = points + $2, updated_at = $3 WHERE id = $1`,
		tx.ToUserID, tx.Points, tx.CreatedAt,
	)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrUserNotFound
	}

	if err := insertTransaction(ctx, dbTx, tx); err != nil {
		return err
	}
	return dbTx.Commit()
}

// Transfer debits the sender, credits the receiver, and records the
// transaction atomically. The debit carries the balance check: the
// conditional UPDATE matches no row when funds are short.
func (r *PostgresRepository) Transfer(ctx context.Context, tx Transaction) error {
	dbTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	debit, err := dbTx.ExecContext(ctx,
		`UPDATE users SET points = points - $2, updated_at = $3 WHERE id = $1 AND points >= $2`,
		tx.FromUserID, tx.Points, tx.CreatedAt,
	)
	if err != nil {
		return err
	}
	if affected, _ := debit.RowsAffected(); affected == 0 {
		return ErrInsufficientBalance
	}

	credit, err := dbTx.ExecContext(ctx,
		`UPDATE users SET points = points + $2, updated_at = $3 WHERE id = $1`,
		tx.ToUserID, tx.Points, tx.CreatedAt,
	)
	if err != nil {
		return err
	}
	if affected, _ := credit.RowsAffected(); affected == 0 {
		return ErrUserNotFound
	}

	if err := insertTransaction(ctx, dbTx, tx); err != nil {
		return err
	}
	return dbTx.Commit()
}

func insertTransaction(ctx context.Context, execer sqlx.ExecerContext, tx Transaction) error {
	const query = `
		INSERT INTO point_transactions (id, type, from_user_id, to_user_id, points, material, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := execer.ExecContext(ctx, query,
		tx.ID,
		tx.Type,
		tx.FromUserID,
		tx.ToUserID,
		tx.Points,
		tx.Material,
		tx.CreatedAt,
	)
	return err
}

type transactionRow struct {
	ID         uuid.UUID       `db:"id"`
	Type       TransactionType `db:"type"`
	FromUserID *uuid.UUID      `db:"from_user_id"`
	ToUserID   uuid.UUID       `db:"to_user_id"`
	Points     int64           `db:"points"`
	Material   string          `db:"material"`
	CreatedAt  time.Time       `db:"created_at"`
}

func (r *transactionRow) toTransaction() Transaction {
	return Transaction{
		ID:         r.ID,
		Type:       r.Type,
		FromUserID: r.FromUserID,
		ToUserID:   r.ToUserID,
		Points:     r.Points,
		Material:   r.Material,
		CreatedAt:  r.CreatedAt,
	}
}
