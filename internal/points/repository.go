package points

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines point balance and transaction persistence.
type Repository interface {
	// Balance returns the user's current balance, or ErrUserNotFound.
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	// History returns the user's most recent transactions, newest
	// first.
	History(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error)
	// CreditRecycling inserts the transaction and bumps the receiver's
	// balance atomically.
	CreditRecycling(ctx context.Context, tx Transaction) error
	// Transfer debits the sender, credits the receiver, and inserts
	// the transaction row in one database transaction. Returns
	// ErrInsufficientBalance when the sender cannot cover the amount.
	Transfer(ctx context.Context, tx Transaction) error
}
