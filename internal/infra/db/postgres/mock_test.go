//go:build !integration

package postgres

import (
	"context"
	"time"

	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/repository"
	red "telegram-group-subscription/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerUserRepo mocks the database repository that the User decorator wraps.
type mockInnerUserRepo struct {
	repository.UserRepository

	SaveFunc               func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByTelegramIDFunc   func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error)
	ExtendSubscriptionFunc func(ctx context.Context, tx repository.Tx, req repository.ExtendRequest) (time.Time, error)
}

func (m *mockInnerUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.SaveFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	return m.FindByTelegramIDFunc(ctx, tx, tgID)
}
func (m *mockInnerUserRepo) ExtendSubscription(ctx context.Context, tx repository.Tx, req repository.ExtendRequest) (time.Time, error) {
	return m.ExtendSubscriptionFunc(ctx, tx, req)
}

// mockRedisClient mocks the redis client.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Close() error { return nil }
