package repository

import (
	"context"
	"time"

	"telegram-group-subscription/internal/domain/model"
)

// SessionStore holds ephemeral payment sessions. Implementations return
// copies; callers must Put a session back after mutating it.
type SessionStore interface {
	Get(ctx context.Context, id string) (*model.PaymentSession, error)
	// FindByRef resolves a payment-link id or Stars invoice payload.
	FindByRef(ctx context.Context, ref string) (*model.PaymentSession, error)
	Put(ctx context.Context, s *model.PaymentSession) error
	Delete(ctx context.Context, id string) error
	// Sweep returns open sessions whose expires_at is before now.
	Sweep(ctx context.Context, now time.Time) ([]*model.PaymentSession, error)
	// ListOpen returns all pending and processing sessions.
	ListOpen(ctx context.Context) ([]*model.PaymentSession, error)
	// DeleteClosedBefore drops terminal sessions closed before the cutoff.
	DeleteClosedBefore(ctx context.Context, before time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// ProcessedEventStore is a best-effort de-duplication set of webhook event ids.
type ProcessedEventStore interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
	Len(ctx context.Context) (int, error)
}

// Locker serializes work on a key across goroutines (and instances, for
// shared backends). TryLock waits a bounded time and then fails with
// domain.ErrLocked.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
