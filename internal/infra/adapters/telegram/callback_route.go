package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/ports/adapter"
	"telegram-group-subscription/internal/infra/logging"
	"telegram-group-subscription/internal/usecase"
)

const (
	cbPlan   = "plan:"
	cbStars  = "stars:"
	cbCard   = "card:"
	cbPaid   = "paid:"
	cbCancel = "cancel:"
)

type cbHandler func(ctx context.Context, q *tgbotapi.CallbackQuery, chatID int64, arg string) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: cbPlan, Fn: r.planCBRoute},
		{Prefix: cbStars, Fn: r.sessionOnly(r.starsCBRoute)},
		{Prefix: cbCard, Fn: r.sessionOnly(r.cardCBRoute)},
		{Prefix: cbPaid, Fn: r.sessionOnly(r.paidCBRoute)},
		{Prefix: cbCancel, Fn: r.sessionOnly(r.cancelCBRoute)},
	}
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.From == nil {
		return errors.New("invalid callback query")
	}
	// stops the client spinner
	defer r.client.answerCallback(q.ID, "")

	chatID := q.From.ID
	if q.Message != nil && q.Message.Chat != nil {
		chatID = q.Message.Chat.ID
	}
	ctx = logging.WithTgID(ctx, q.From.ID)
	data := strings.TrimSpace(q.Data)

	if !r.allow(ctx, q.From.ID, "cb", callbackLimit) {
		return r.client.SendMessage(ctx, chatID, r.tr.T("rate_limited"))
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, q, chatID, strings.TrimPrefix(data, pr.Prefix))
		}
	}
	return fmt.Errorf("unknown callback data %q", data)
}

// sessionOnly rejects session callbacks for sessions the caller does not own.
func (r *RealTelegramBotAdapter) sessionOnly(next cbHandler) cbHandler {
	return func(ctx context.Context, q *tgbotapi.CallbackQuery, chatID int64, sessionID string) error {
		if !strings.HasPrefix(sessionID, fmt.Sprintf("pay_%d_", q.From.ID)) {
			logging.With(ctx, r.log).Warn().Str("session_id", sessionID).Msg("callback for a foreign session")
			return r.client.SendMessage(ctx, chatID, r.tr.T("session_expired"))
		}
		return next(logging.WithSessID(ctx, sessionID), q, chatID, sessionID)
	}
}

func (r *RealTelegramBotAdapter) planCBRoute(ctx context.Context, q *tgbotapi.CallbackQuery, chatID int64, planID string) error {
	s, err := r.payUC.CreateSession(ctx, q.From.ID, q.From.UserName, planID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownPlan) {
			return r.client.SendMessage(ctx, chatID, r.tr.T("unknown_plan"))
		}
		logging.With(ctx, r.log).Error().Err(err).Str("plan_id", planID).Msg("session creation failed")
		return r.client.SendMessage(ctx, chatID, r.tr.T("error_generic"))
	}
	rows := [][]adapter.InlineButton{
		{{Text: r.tr.T("button_pay_stars"), Data: cbStars + s.ID}},
		{{Text: r.tr.T("button_pay_card"), Data: cbCard + s.ID}},
		{{Text: r.tr.T("button_cancel"), Data: cbCancel + s.ID}},
	}
	return r.client.SendButtons(ctx, chatID, r.tr.T("payment_method_prompt", s.Plan.Name, s.Plan.Stars), rows)
}

func (r *RealTelegramBotAdapter) starsCBRoute(ctx context.Context, q *tgbotapi.CallbackQuery, chatID int64, sessionID string) error {
	inv, err := r.payUC.ProcessStarsPayment(ctx, sessionID)
	if err != nil {
		return r.sendSessionError(ctx, chatID, err)
	}
	return r.client.SendStarsInvoice(ctx, chatID, inv)
}

func (r *RealTelegramBotAdapter) cardCBRoute(ctx context.Context, q *tgbotapi.CallbackQuery, chatID int64, sessionID string) error {
	res, err := r.payUC.ProcessCardPayment(ctx, sessionID, r.webhookURL)
	if err != nil {
		if res != nil && res.FallbackAvailable {
			fallback := res.FallbackSessionID
			if fallback == "" {
				fallback = sessionID
			}
			rows := [][]adapter.InlineButton{{{Text: r.tr.T("button_pay_stars"), Data: cbStars + fallback}}}
			return r.client.SendButtons(ctx, chatID, r.tr.T("card_unavailable"), rows)
		}
		return r.sendSessionError(ctx, chatID, err)
	}
	rows := [][]adapter.InlineButton{
		{{Text: r.tr.T("button_open_payment"), URL: res.PaymentURL}},
		{{Text: r.tr.T("button_paid"), Data: cbPaid + sessionID}},
		{{Text: r.tr.T("button_cancel"), Data: cbCancel + sessionID}},
	}
	text := r.tr.T("card_link_ready", res.Amount, res.Currency, res.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"))
	return r.client.SendButtons(ctx, chatID, text, rows)
}

// paidCBRoute is the user's "I've paid": the gateway is asked for the link
// status before anything is granted.
func (r *RealTelegramBotAdapter) paidCBRoute(ctx context.Context, q *tgbotapi.CallbackQuery, chatID int64, sessionID string) error {
	res, err := r.payUC.ConfirmPayment(ctx, usecase.CardConfirmation{SessionID: sessionID})
	switch {
	case errors.Is(err, domain.ErrPaymentNotConfirmed):
		return r.client.SendMessage(ctx, chatID, r.tr.T("card_not_confirmed"))
	case err != nil:
		return r.sendSessionError(ctx, chatID, err)
	case res.Duplicate:
		return r.client.SendMessage(ctx, chatID, r.tr.T("session_closed"))
	}
	_, err = r.subUC.GrantAccess(ctx, res)
	return err
}

func (r *RealTelegramBotAdapter) cancelCBRoute(ctx context.Context, q *tgbotapi.CallbackQuery, chatID int64, sessionID string) error {
	if err := r.payUC.CancelPayment(ctx, sessionID); err != nil {
		return r.sendSessionError(ctx, chatID, err)
	}
	return r.client.SendMessage(ctx, chatID, r.tr.T("payment_cancelled"))
}

func (r *RealTelegramBotAdapter) sendSessionError(ctx context.Context, chatID int64, err error) error {
	key := "error_generic"
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		key = "session_expired"
	case errors.Is(err, domain.ErrSessionClosed):
		key = "session_closed"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		key = "card_unavailable"
	default:
		logging.With(ctx, r.log).Error().Err(err).Msg("payment callback failed")
	}
	return r.client.SendMessage(ctx, chatID, r.tr.T(key))
}
