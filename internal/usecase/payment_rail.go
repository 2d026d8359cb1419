// File: internal/usecase/payment_rail.go
package usecase

import (
	"context"
	"fmt"
	"strconv"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
)

// StarsCurrency is the Bot API currency code of Telegram Stars.
const StarsCurrency = "XTR"

// Confirmation is a completed payment reported by one rail. The two
// variants are CardConfirmation and StarsConfirmation; each knows how to
// locate its session and how to verify itself before anything is written.
type Confirmation interface {
	Method() model.PaymentMethod
	// lookup returns the session id and/or external reference to resolve.
	lookup() (sessionID, ref string)
	// verify checks the payment against the session and returns the
	// transaction id to record.
	verify(ctx context.Context, uc *paymentUC, s *model.PaymentSession) (string, error)
	// orphan builds a session for a payment whose session is gone, or nil.
	orphan(uc *paymentUC) *model.PaymentSession
}

// CardConfirmation comes from the webhook, the poller or the user's
// "I've paid" button. It is never trusted without a remote status check.
type CardConfirmation struct {
	SessionID     string
	LinkID        string
	TransactionID string
	// TelegramID and PlanID come from link metadata and are only used
	// when the session is no longer known.
	TelegramID int64
	PlanID     string
}

func (c CardConfirmation) Method() model.PaymentMethod { return model.PaymentMethodCard }

func (c CardConfirmation) lookup() (string, string) { return c.SessionID, c.LinkID }

func (c CardConfirmation) verify(ctx context.Context, uc *paymentUC, s *model.PaymentSession) (string, error) {
	linkID := c.LinkID
	if linkID == "" {
		linkID = s.ExternalRef
	}
	if linkID == "" || (s.Method != "" && s.Method != model.PaymentMethodCard) {
		return "", fmt.Errorf("%w: session has no card payment link", domain.ErrPaymentMismatch)
	}
	if uc.gateway == nil || !uc.gateway.Configured() {
		return "", domain.ErrGatewayUnavailable
	}
	st, err := uc.gateway.GetPaymentLinkStatus(ctx, linkID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	if !st.Paid() {
		return "", fmt.Errorf("%w: link %s is %s", domain.ErrPaymentNotConfirmed, linkID, st.Status)
	}
	if raw := st.Metadata["telegram_id"]; raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id != s.TelegramID {
			return "", fmt.Errorf("%w: link belongs to another user", domain.ErrPaymentMismatch)
		}
	}
	switch {
	case st.PaymentIntentID != "":
		return st.PaymentIntentID, nil
	case c.TransactionID != "":
		return c.TransactionID, nil
	}
	return linkID, nil
}

func (c CardConfirmation) orphan(uc *paymentUC) *model.PaymentSession {
	if c.TelegramID <= 0 || c.LinkID == "" {
		return nil
	}
	plan, err := uc.plans.Get(c.PlanID)
	if err != nil {
		return nil
	}
	now := uc.now()
	s, err := model.NewPaymentSession(uc.newSessionID(c.TelegramID), c.TelegramID, "", plan, now, uc.cfg.SessionTTL)
	if err != nil {
		return nil
	}
	_ = s.StartProcessing(model.PaymentMethodCard, c.LinkID, now)
	return s
}

// StarsConfirmation is built from a Telegram successful_payment update.
// Telegram has already charged the user, so verification is local.
type StarsConfirmation struct {
	SessionID  string
	Payload    string
	ChargeID   string
	TelegramID int64
	Amount     int
	Currency   string
}

func (c StarsConfirmation) Method() model.PaymentMethod { return model.PaymentMethodStars }

func (c StarsConfirmation) lookup() (string, string) { return c.SessionID, c.Payload }

func (c StarsConfirmation) verify(_ context.Context, _ *paymentUC, s *model.PaymentSession) (string, error) {
	switch {
	case c.ChargeID == "":
		return "", fmt.Errorf("%w: missing charge id", domain.ErrInvalidArgument)
	case c.TelegramID != s.TelegramID:
		return "", fmt.Errorf("%w: payer %d does not own session", domain.ErrPaymentMismatch, c.TelegramID)
	case c.Currency != StarsCurrency:
		return "", fmt.Errorf("%w: currency %q", domain.ErrPaymentMismatch, c.Currency)
	case c.Amount != s.Plan.Stars:
		return "", fmt.Errorf("%w: amount %d, expected %d", domain.ErrPaymentMismatch, c.Amount, s.Plan.Stars)
	}
	return c.ChargeID, nil
}

func (c StarsConfirmation) orphan(*paymentUC) *model.PaymentSession { return nil }
