package points

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies how points moved.
type TransactionType string

const (
	// TransactionRecycling credits points for a recycling drop-off.
	TransactionRecycling TransactionType = "recycling"
	// TransactionTransfer moves points between two users.
	TransactionTransfer TransactionType = "transfer"
)

// Transaction is one movement of points. FromUserID is nil for
// recycling credits, which are minted rather than moved.
type Transaction struct {
	ID         uuid.UUID       `json:"id"`
	Type       TransactionType `json:"type"`
	FromUserID *uuid.UUID      `json:"fromUserId,omitempty"`
	ToUserID   uuid.UUID       `json:"toUserId"`
	Points     int64           `json:"points"`
	Material   string          `json:"material,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

var (
	ErrInvalidAmount       = errors.New("points amount must be positive")
	ErrSelfTransfer        = errors.New("cannot transfer points to yourself")
	ErrInsufficientBalance = errors.New("insufficient point balance")
	ErrUserNotFound        = errors.New("user not found")
)
