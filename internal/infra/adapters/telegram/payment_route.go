package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-group-subscription/internal/infra/logging"
	"telegram-group-subscription/internal/usecase"
)

// handlePreCheckout must answer within ten seconds or Telegram cancels
// the payment.
func (r *RealTelegramBotAdapter) handlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) error {
	if q.From == nil {
		return r.client.AnswerPreCheckout(q.ID, false, r.tr.T("payment_rejected"))
	}
	ctx = logging.WithTgID(ctx, q.From.ID)
	if err := r.payUC.ValidatePreCheckout(ctx, q.From.ID, q.InvoicePayload, q.TotalAmount, q.Currency); err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Str("payload", q.InvoicePayload).Msg("pre-checkout rejected")
		return r.client.AnswerPreCheckout(q.ID, false, r.tr.T("payment_rejected"))
	}
	return r.client.AnswerPreCheckout(q.ID, true, "")
}

// handleSuccessfulPayment confirms a Stars charge. Telegram has already
// taken the Stars, so a failure here needs an operator, not a retry.
func (r *RealTelegramBotAdapter) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) error {
	sp := msg.SuccessfulPayment
	ctx = logging.WithTgID(ctx, msg.From.ID)
	l := logging.With(ctx, r.log)

	res, err := r.payUC.ConfirmPayment(ctx, usecase.StarsConfirmation{
		Payload:    sp.InvoicePayload,
		ChargeID:   sp.TelegramPaymentChargeID,
		TelegramID: msg.From.ID,
		Amount:     sp.TotalAmount,
		Currency:   sp.Currency,
	})
	if err != nil {
		l.Error().Err(err).
			Str("charge_id", sp.TelegramPaymentChargeID).
			Str("payload", sp.InvoicePayload).
			Msg("stars payment could not be applied")
		return r.client.SendMessage(ctx, msg.Chat.ID, r.tr.T("payment_processing_error"))
	}
	if res.Duplicate {
		l.Info().Str("charge_id", sp.TelegramPaymentChargeID).Msg("duplicate stars receipt")
		return nil
	}
	_, err = r.subUC.GrantAccess(ctx, res)
	return err
}
