package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"telegram-group-subscription/internal/domain/ports/repository"
)

var _ repository.ProcessedEventStore = (*EventSet)(nil)

const eventSetKey = "webhook:processed"

// EventSet is a sorted set of webhook event ids scored by the time they were
// marked. Entries older than the retention window are trimmed on Mark.
type EventSet struct {
	cli       *redis.Client
	retention time.Duration
}

func NewEventSet(c *Client, retention time.Duration) *EventSet {
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	return &EventSet{cli: c.cli, retention: retention}
}

func (e *EventSet) Seen(ctx context.Context, id string) (bool, error) {
	_, err := e.cli.ZScore(ctx, eventSetKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *EventSet) Mark(ctx context.Context, id string) error {
	now := time.Now()
	_, err := e.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, eventSetKey, &redis.Z{Score: float64(now.Unix()), Member: id})
		p.ZRemRangeByScore(ctx, eventSetKey, "-inf", fmt.Sprintf("(%d", now.Add(-e.retention).Unix()))
		return nil
	})
	return err
}

func (e *EventSet) Len(ctx context.Context) (int, error) {
	n, err := e.cli.ZCard(ctx, eventSetKey).Result()
	return int(n), err
}
