package points

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultHistoryLimit = 50

// Notifier broadcasts completed transactions. A nil-safe no-op
// implementation exists for deployments without redis.
type Notifier interface {
	TransactionCompleted(ctx context.Context, tx Transaction)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) TransactionCompleted(context.Context, Transaction) {}

// Service provides point accounting on top of a Repository.
type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
}

// NewService creates a points Service.
func NewService(repo Repository, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
	}
}

// Balance returns the user's current balance.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.Balance(ctx, userID)
}

// History returns the user's most recent transactions.
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]Transaction, error) {
	return s.repo.History(ctx, userID, defaultHistoryLimit)
}

// RecordRecycling credits points for a recycling drop-off and
// broadcasts the completed transaction.
func (s *Service) RecordRecycling(ctx context.Context, userID uuid.UUID, amount int64, material string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}

	tx := Transaction{
		ID:        uuid.New(),
		Type:      TransactionRecycling,
		ToUserID:  userID,
		Points:    amount,
		Material:  material,
		CreatedAt: s.now(),
	}

	if err := s.repo.CreditRecycling(ctx, tx); err != nil {
		return Transaction{}, fmt.Errorf("credit recycling: %w", err)
	}

	s.notifier.TransactionCompleted(ctx, tx)
	return tx, nil
}

// Transfer moves points between two users and broadcasts the completed
// transaction.
func (s *Service) Transfer(ctx context.Context, from, to uuid.UUID, amount int64) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if from == to {
		return Transaction{}, ErrSelfTransfer
	}

	sender := from
	tx := Transaction{
		ID:         uuid.New(),
		Type:       TransactionTransfer,
		FromUserID: &sender,
		ToUserID:   to,
		Points:     amount,
		CreatedAt:  s.now(),
	}

	if err := s.repo.Transfer(ctx, tx); err != nil {
		return Transaction{}, err
	}

	s.notifier.TransactionCompleted(ctx, tx)
	return tx, nil
}
