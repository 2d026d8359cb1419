package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/repository"
	"telegram-group-subscription/internal/infra/metrics"
	red "telegram-group-subscription/internal/infra/redis"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

// userRepoCacheDecorator caches non-transactional reads by telegram id.
// Reads inside a transaction always go to the database, since they are
// usually followed by a write under a row lock.
type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.UserRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	l := logger.With().Str("component", "user_cache").Logger()
	return &userRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func userKey(tgID int64) string { return fmt.Sprintf("user:tgid:%d", tgID) }

func (d *userRepoCacheDecorator) invalidate(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, userKey(id))
	}
	if err := d.cache.Del(ctx, keys...); err != nil {
		d.log.Warn().Err(err).Int("keys", len(keys)).Msg("cache invalidation failed")
	}
}

func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	err := d.inner.Save(ctx, tx, u)
	d.invalidate(ctx, u.TelegramID)
	return err
}

func (d *userRepoCacheDecorator) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if tx != nil {
		metrics.IncCacheRequest("user", "bypass")
		return d.inner.FindByTelegramID(ctx, tx, tgID)
	}
	key := userKey(tgID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var user model.User
		if json.Unmarshal([]byte(val), &user) == nil {
			metrics.IncCacheRequest("user", "hit")
			return &user, nil
		}
	} else if !errors.Is(err, red.Nil) {
		metrics.IncCacheRequest("user", "error")
		d.log.Warn().Err(err).Int64("tg_id", tgID).Msg("cache read failed")
	}

	metrics.IncCacheRequest("user", "miss")
	user, err := d.inner.FindByTelegramID(ctx, tx, tgID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(user); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return user, nil
}

func (d *userRepoCacheDecorator) LockUser(ctx context.Context, tx repository.Tx, tgID int64) error {
	return d.inner.LockUser(ctx, tx, tgID)
}

func (d *userRepoCacheDecorator) SaveMany(ctx context.Context, tx repository.Tx, users []*model.User, batchSize int) (int, error) {
	n, err := d.inner.SaveMany(ctx, tx, users, batchSize)
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.TelegramID)
	}
	d.invalidate(ctx, ids...)
	return n, err
}

func (d *userRepoCacheDecorator) ExtendSubscription(ctx context.Context, tx repository.Tx, req repository.ExtendRequest) (time.Time, error) {
	t, err := d.inner.ExtendSubscription(ctx, tx, req)
	d.invalidate(ctx, req.TelegramID)
	return t, err
}

// Pass-through methods that don't need caching
func (d *userRepoCacheDecorator) ListByStatus(ctx context.Context, tx repository.Tx, status model.SubscriptionStatus) ([]*model.User, error) {
	return d.inner.ListByStatus(ctx, tx, status)
}

func (d *userRepoCacheDecorator) ListExpiringBetween(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.User, error) {
	return d.inner.ListExpiringBetween(ctx, tx, from, to)
}

func (d *userRepoCacheDecorator) ListOverdue(ctx context.Context, tx repository.Tx, before time.Time) ([]*model.User, error) {
	return d.inner.ListOverdue(ctx, tx, before)
}

func (d *userRepoCacheDecorator) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	return d.inner.CountByStatus(ctx, tx)
}
