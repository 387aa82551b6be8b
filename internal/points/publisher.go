package points

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// EventChannel is the redis channel completed transactions are
// published on. Subscribers (the push notification worker, the
// websocket gateway) react without polling the database.
const EventChannel = "points.events"

// Publisher broadcasts completed transactions over redis pub/sub.
// Publishing is best effort: a failed publish is logged, never
// propagated, because the transaction has already committed.
type Publisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(rdb *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger}
}

func (p *Publisher) TransactionCompleted(ctx context.Context, tx Transaction) {
	payload, err := json.Marshal(tx)
	if err != nil {
		p.logger.Error("marshal transaction event", "error", err)
		return
	}
	if err := p.rdb.Publish(ctx, EventChannel, payload).Err(); err != nil {
		p.logger.Warn("publish transaction event", "error", err, "transaction_id", tx.ID)
	}
}
