package repository

import (
	"context"
	"time"

	"telegram-group-subscription/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

// ExtendRequest is the input of an atomic subscription extension.
type ExtendRequest struct {
	TelegramID    int64
	Username      string
	Method        model.PaymentMethod
	TransactionID string
	Days          int
	Today         time.Time
	Details       map[string]any
}

type UserRepository interface {
	// Save upserts the whole row keyed by telegram id.
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	// LockUser serializes writers of one user for the rest of tx.
	LockUser(ctx context.Context, tx Tx, tgID int64) error
	// SaveMany upserts rows in batches of at most batchSize.
	SaveMany(ctx context.Context, tx Tx, users []*model.User, batchSize int) (int, error)
	ListByStatus(ctx context.Context, tx Tx, status model.SubscriptionStatus) ([]*model.User, error)
	// ListExpiringBetween returns active rows with from <= next_payment_date <= to.
	ListExpiringBetween(ctx context.Context, tx Tx, from, to time.Time) ([]*model.User, error)
	// ListOverdue returns active rows with next_payment_date < before.
	ListOverdue(ctx context.Context, tx Tx, before time.Time) ([]*model.User, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
	// ExtendSubscription runs the stored extension procedure, which updates
	// the row and appends one activity entry atomically. It returns
	// domain.ErrProcedureUnavailable when the procedure is not installed.
	ExtendSubscription(ctx context.Context, tx Tx, req ExtendRequest) (time.Time, error)
}
