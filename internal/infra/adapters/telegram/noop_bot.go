package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/adapter"
)

var (
	_ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)
	_ adapter.GroupManager       = (*NoopBotAdapter)(nil)
	_ adapter.Notifier           = (*NoopBotAdapter)(nil)
	_ adapter.StarsRefunder      = (*NoopBotAdapter)(nil)
)

// NoopBotAdapter logs instead of calling Telegram. It backs local runs with
// bot.disabled set, where only the HTTP surface is exercised.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "noop_telegram").Logger()
	return &NoopBotAdapter{log: &l}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("tg_id", tgID).Str("text", text).Msg("send message")
	return nil
}

func (b *NoopBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("tg_id", tgID).Str("text", text).Int("rows", len(rows)).Msg("send buttons")
	return nil
}

func (b *NoopBotAdapter) CreateInviteLink(ctx context.Context, tgID int64) (string, error) {
	link := fmt.Sprintf("https://t.me/+noop%d", tgID)
	b.log.Info().Int64("tg_id", tgID).Str("link", link).Msg("create invite link")
	return link, nil
}

func (b *NoopBotAdapter) RemoveMember(ctx context.Context, tgID int64) error {
	b.log.Info().Int64("tg_id", tgID).Msg("remove member")
	return nil
}

func (b *NoopBotAdapter) NotifySubscriptionActivated(ctx context.Context, tgID int64, res *model.SubscriptionResult, inviteLink string) error {
	return b.SendMessage(ctx, tgID, fmt.Sprintf("activated %s until %s %s", res.PlanName, res.ExpiresAt.Format("2006-01-02"), inviteLink))
}

func (b *NoopBotAdapter) NotifyPaymentFailed(ctx context.Context, tgID int64, reason string) error {
	return b.SendMessage(ctx, tgID, "payment failed: "+reason)
}

func (b *NoopBotAdapter) NotifyLinkExpired(ctx context.Context, tgID int64) error {
	return b.SendMessage(ctx, tgID, "payment link expired")
}

func (b *NoopBotAdapter) NotifySubscriptionExpired(ctx context.Context, tgID int64) error {
	return b.SendMessage(ctx, tgID, "subscription expired")
}

func (b *NoopBotAdapter) NotifyExpiryReminder(ctx context.Context, tgID int64, daysLeft int, expiresAt time.Time) error {
	return b.SendMessage(ctx, tgID, fmt.Sprintf("expires %s (%d days)", expiresAt.Format("2006-01-02"), daysLeft))
}

func (b *NoopBotAdapter) NotifyRefund(ctx context.Context, tgID int64, amount string) error {
	return b.SendMessage(ctx, tgID, "refunded "+amount)
}

func (b *NoopBotAdapter) RefundStarPayment(ctx context.Context, tgID int64, chargeID string) error {
	b.log.Info().Int64("tg_id", tgID).Str("charge_id", chargeID).Msg("refund star payment")
	return nil
}
