package adapter

import (
	"context"
	"time"

	"telegram-group-subscription/internal/domain/model"
)

type InlineButton struct {
	Text string
	Data string
	URL  string
}

type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
	SendButtons(ctx context.Context, telegramID int64, text string, rows [][]InlineButton) error
}

// GroupManager controls membership of the paid group.
type GroupManager interface {
	// CreateInviteLink returns a single-use invite link.
	CreateInviteLink(ctx context.Context, telegramID int64) (string, error)
	// RemoveMember evicts the user; domain.ErrNotInGroup when they are not a member.
	RemoveMember(ctx context.Context, telegramID int64) error
}

// Notifier delivers lifecycle messages to users. Formatting is the adapter's job.
type Notifier interface {
	NotifySubscriptionActivated(ctx context.Context, telegramID int64, res *model.SubscriptionResult, inviteLink string) error
	NotifyPaymentFailed(ctx context.Context, telegramID int64, reason string) error
	NotifyLinkExpired(ctx context.Context, telegramID int64) error
	NotifySubscriptionExpired(ctx context.Context, telegramID int64) error
	NotifyExpiryReminder(ctx context.Context, telegramID int64, daysLeft int, expiresAt time.Time) error
	NotifyRefund(ctx context.Context, telegramID int64, amount string) error
}

// StarsRefunder returns Telegram Stars for a given charge.
type StarsRefunder interface {
	RefundStarPayment(ctx context.Context, telegramID int64, chargeID string) error
}
