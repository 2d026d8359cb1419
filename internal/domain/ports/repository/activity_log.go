package repository

import (
	"context"
	"time"

	"telegram-group-subscription/internal/domain/model"
)

// -----------------------------
// Activity log (append-only)
// -----------------------------

type ActivityLogRepository interface {
	Append(ctx context.Context, tx Tx, e *model.ActivityLogEntry) error
	// ListByUser returns the newest entries first; an empty action means any.
	ListByUser(ctx context.Context, tx Tx, tgID int64, action model.ActivityAction, limit int) ([]*model.ActivityLogEntry, error)
	// ExistsSince checks whether the user has an entry of that action at or after since.
	ExistsSince(ctx context.Context, tx Tx, tgID int64, action model.ActivityAction, since time.Time) (bool, error)
	DeleteOlderThan(ctx context.Context, tx Tx, before time.Time) (int64, error)
	PaymentStatsSince(ctx context.Context, tx Tx, since time.Time) (*model.PaymentStats, error)
}
