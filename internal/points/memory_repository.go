package points

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// NewInMemoryRepository creates an empty points repository for local
// development and tests. Balances must be seeded before they can be
// debited.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		balances: make(map[uuid.UUID]int64),
	}
}

// InMemoryRepository implements Repository in process memory.
type InMemoryRepository struct {
	mu           sync.RWMutex
	balances     map[uuid.UUID]int64
	transactions []Transaction
}

// Seed registers a user with an initial balance.
func (m *InMemoryRepository) Seed(userID uuid.UUID, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = balance
}

func (m *InMemoryRepository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	balance, ok := m.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return balance, nil
}

func (m *InMemoryRepository) History(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Transaction
	for _, tx := range m.transactions {
		if tx.ToUserID == userID || (tx.FromUserID != nil && *tx.FromUserID == userID) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemoryRepository) CreditRecycling(ctx context.Context, tx Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.balances[tx.ToUserID]; !ok {
		return ErrUserNotFound
	}
	m.balances[tx.ToUserID] += tx.Points
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *InMemoryRepository) Transfer(ctx context.Context, tx Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender, ok := m.balances[*tx.FromUserID]
	if !ok || sender < tx.Points {
		return ErrInsufficientBalance
	}
	if _, ok := m.balances[tx.ToUserID]; !ok {
		return ErrUserNotFound
	}

	m.balances[*tx.FromUserID] -= tx.Points
	m.balances[tx.ToUserID] += tx.Points
	m.transactions = append(m.transactions, tx)
	return nil
}
