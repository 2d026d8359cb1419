package telegram

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/adapter"
	"telegram-group-subscription/internal/infra/logging"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":     r.handleStartCommand,
		"subscribe": r.handleSubscribeCommand,
		"plans":     r.handleSubscribeCommand,
		"status":    r.handleStatusCommand,
		"help":      r.handleHelpCommand,
	}
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	if _, err := r.subUC.GetOrCreateUser(ctx, message.From.ID, message.From.UserName); err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("user registration failed")
		return r.client.SendMessage(ctx, message.Chat.ID, r.tr.T("error_generic"))
	}
	return r.client.SendMessage(ctx, message.Chat.ID, r.tr.T("welcome_message"))
}

func (r *RealTelegramBotAdapter) handleSubscribeCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendPlansMenu(ctx, message.Chat.ID)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.client.SendMessage(ctx, message.Chat.ID, r.tr.T("help_message"))
}

func (r *RealTelegramBotAdapter) handleStatusCommand(ctx context.Context, message *tgbotapi.Message) error {
	u, err := r.subUC.GetUser(ctx, message.From.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return r.client.SendMessage(ctx, message.Chat.ID, r.tr.T("status_none"))
	case err != nil:
		logging.With(ctx, r.log).Error().Err(err).Msg("status lookup failed")
		return r.client.SendMessage(ctx, message.Chat.ID, r.tr.T("error_generic"))
	}
	return r.client.SendMessage(ctx, message.Chat.ID, r.statusText(u, time.Now()))
}

func (r *RealTelegramBotAdapter) statusText(u *model.User, now time.Time) string {
	switch {
	case u.Status == model.SubscriptionWhitelisted:
		return r.tr.T("status_whitelisted")
	case u.IsActive(now) && u.NextPaymentDate != nil:
		return r.tr.T("status_active", u.NextPaymentDate.Format("2006-01-02"), u.DaysUntilExpiry(now))
	default:
		return r.tr.T("status_expired")
	}
}

// sendPlansMenu lists the plans as buttons; pressing one opens a session.
func (r *RealTelegramBotAdapter) sendPlansMenu(ctx context.Context, chatID int64) error {
	plans := r.payUC.Plans()
	if len(plans) == 0 {
		return r.client.SendMessage(ctx, chatID, r.tr.T("plans_empty"))
	}
	rows := make([][]adapter.InlineButton, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, []adapter.InlineButton{{Text: r.tr.T("plan_button", p.Name, p.Stars), Data: cbPlan + p.ID}})
	}
	return r.client.SendButtons(ctx, chatID, r.tr.T("plans_header"), rows)
}
