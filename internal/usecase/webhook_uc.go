// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/adapter"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

const (
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.failed"
	EventPaymentLinkExpire = "payment_link.expired"
	EventRefundSucceeded   = "refund.succeeded"
)

// WebhookEvent is the gateway's event envelope. Object is kept raw and
// decoded per event name.
type WebhookEvent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
	Data      struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type WebhookUseCase interface {
	// Supports reports whether an event name has a handler.
	Supports(name string) bool
	// Handle runs the handler for the event. Events that cannot be acted
	// on (no user, no link) are logged and dropped with a nil error.
	Handle(ctx context.Context, ev *WebhookEvent) error
}

type webhookUC struct {
	payments PaymentUseCase
	subs     SubscriptionUseCase
	notifier adapter.Notifier
	log      *zerolog.Logger

	handlers map[string]func(ctx context.Context, ev *WebhookEvent) error
}

func NewWebhookUseCase(payments PaymentUseCase, subs SubscriptionUseCase, notifier adapter.Notifier, logger *zerolog.Logger) *webhookUC {
	l := logger.With().Str("component", "webhook_uc").Logger()
	uc := &webhookUC{payments: payments, subs: subs, notifier: notifier, log: &l}
	uc.handlers = map[string]func(context.Context, *WebhookEvent) error{
		EventPaymentSucceeded:  uc.paymentSucceeded,
		EventPaymentFailed:     uc.paymentFailed,
		EventPaymentLinkExpire: uc.linkExpired,
		EventRefundSucceeded:   uc.refundSucceeded,
	}
	return uc
}

func (uc *webhookUC) Supports(name string) bool {
	_, ok := uc.handlers[name]
	return ok
}

func (uc *webhookUC) Handle(ctx context.Context, ev *WebhookEvent) error {
	h, ok := uc.handlers[ev.Name]
	if !ok {
		uc.log.Info().Str("event", ev.Name).Str("event_id", ev.ID).Msg("unhandled webhook event")
		return nil
	}
	return h(ctx, ev)
}

type paymentIntentObject struct {
	ID               string         `json:"id"`
	PaymentLinkID    string         `json:"payment_link_id"`
	Amount           float64        `json:"amount"`
	Currency         string         `json:"currency"`
	Metadata         map[string]any `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type paymentLinkObject struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

type refundObject struct {
	ID              string         `json:"id"`
	PaymentIntentID string         `json:"payment_intent_id"`
	Amount          float64        `json:"amount"`
	Currency        string         `json:"currency"`
	Metadata        map[string]any `json:"metadata"`
}

func decodeObject(ev *WebhookEvent, out any) error {
	if len(ev.Data.Object) == 0 {
		return fmt.Errorf("%w: event %s has no data.object", domain.ErrInvalidArgument, ev.ID)
	}
	if err := json.Unmarshal(ev.Data.Object, out); err != nil {
		return fmt.Errorf("%w: decode %s object: %v", domain.ErrInvalidArgument, ev.Name, err)
	}
	return nil
}

// telegramIDFrom accepts the id as a JSON string or number.
func telegramIDFrom(meta map[string]any) (int64, bool) {
	switch v := meta["telegram_id"].(type) {
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil && id > 0
	case float64:
		id := int64(v)
		return id, id > 0 && float64(id) == v
	case json.Number:
		id, err := v.Int64()
		return id, err == nil && id > 0
	}
	return 0, false
}

func metaString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func (uc *webhookUC) paymentSucceeded(ctx context.Context, ev *WebhookEvent) error {
	var obj paymentIntentObject
	if err := decodeObject(ev, &obj); err != nil {
		return err
	}
	tgID, ok := telegramIDFrom(obj.Metadata)
	if !ok {
		uc.log.Warn().Str("event_id", ev.ID).Interface("telegram_id", obj.Metadata["telegram_id"]).Msg("payment without usable telegram_id; dropped")
		return nil
	}
	if obj.PaymentLinkID == "" {
		uc.log.Warn().Str("event_id", ev.ID).Int64("tg_id", tgID).Msg("payment not made through a link; dropped")
		return nil
	}

	res, err := uc.payments.ConfirmPayment(ctx, CardConfirmation{
		LinkID:        obj.PaymentLinkID,
		TransactionID: obj.ID,
		TelegramID:    tgID,
		PlanID:        metaString(obj.Metadata, "plan_id"),
	})
	if err != nil {
		return fmt.Errorf("confirm card payment %s: %w", obj.PaymentLinkID, err)
	}
	if res.Duplicate {
		uc.log.Info().Str("event_id", ev.ID).Int64("tg_id", tgID).Msg("payment already confirmed")
		return nil
	}
	if _, err := uc.subs.GrantAccess(ctx, res); err != nil {
		uc.log.Warn().Err(err).Int64("tg_id", tgID).Msg("subscription active but invite failed")
	}
	return nil
}

func (uc *webhookUC) paymentFailed(ctx context.Context, ev *WebhookEvent) error {
	var obj paymentIntentObject
	if err := decodeObject(ev, &obj); err != nil {
		return err
	}
	reason := "payment processing failed"
	if obj.LastPaymentError != nil && obj.LastPaymentError.Message != "" {
		reason = obj.LastPaymentError.Message
	}

	tgID, ok := telegramIDFrom(obj.Metadata)
	if obj.PaymentLinkID != "" {
		s, err := uc.payments.FailCardPayment(ctx, obj.PaymentLinkID, reason)
		switch {
		case err == nil:
			if !ok {
				tgID, ok = s.TelegramID, true
			}
		case errors.Is(err, domain.ErrSessionNotFound):
		default:
			uc.log.Warn().Err(err).Str("link_id", obj.PaymentLinkID).Msg("failed attempt not recorded")
		}
	}
	if !ok {
		uc.log.Warn().Str("event_id", ev.ID).Msg("failed payment without telegram_id")
		return nil
	}

	if err := uc.subs.LogActivity(ctx, tgID, model.ActionPaymentFailed, map[string]any{
		"method":  string(model.PaymentMethodCard),
		"link_id": obj.PaymentLinkID,
		"reason":  reason,
	}); err != nil {
		uc.log.Warn().Err(err).Int64("tg_id", tgID).Msg("payment failure not logged")
	}
	return uc.notifier.NotifyPaymentFailed(ctx, tgID, reason)
}

func (uc *webhookUC) linkExpired(ctx context.Context, ev *WebhookEvent) error {
	var obj paymentLinkObject
	if err := decodeObject(ev, &obj); err != nil {
		return err
	}
	tgID, ok := telegramIDFrom(obj.Metadata)
	s, err := uc.payments.ExpireCardLink(ctx, obj.ID)
	switch {
	case err == nil:
		if s.Status == model.SessionCompleted {
			return nil
		}
		if !ok {
			tgID, ok = s.TelegramID, true
		}
	case errors.Is(err, domain.ErrSessionNotFound):
	default:
		return err
	}
	if !ok {
		return nil
	}
	return uc.notifier.NotifyLinkExpired(ctx, tgID)
}

func (uc *webhookUC) refundSucceeded(ctx context.Context, ev *WebhookEvent) error {
	var obj refundObject
	if err := decodeObject(ev, &obj); err != nil {
		return err
	}
	uc.log.Info().Str("intent", obj.PaymentIntentID).Float64("amount", obj.Amount).Str("currency", obj.Currency).Msg("refund processed")

	tgID, ok := telegramIDFrom(obj.Metadata)
	if !ok {
		return nil
	}
	if err := uc.subs.LogActivity(ctx, tgID, model.ActionPaymentRefunded, map[string]any{
		"method":            string(model.PaymentMethodCard),
		"refund_id":         obj.ID,
		"payment_intent_id": obj.PaymentIntentID,
		"amount":            obj.Amount,
		"currency":          obj.Currency,
	}); err != nil {
		uc.log.Warn().Err(err).Int64("tg_id", tgID).Msg("refund not logged")
	}
	return uc.notifier.NotifyRefund(ctx, tgID, fmt.Sprintf("%.2f %s", obj.Amount, strings.ToUpper(obj.Currency)))
}
