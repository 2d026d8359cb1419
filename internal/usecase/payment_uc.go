// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/adapter"
	"telegram-group-subscription/internal/domain/ports/repository"
	"telegram-group-subscription/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

const (
	FallbackMethodStars = "stars"

	confirmLockTTL  = 30 * time.Second
	closedRetention = time.Hour
)

// PaymentOptions carries the knobs of the session manager.
type PaymentOptions struct {
	Currency          string
	StarsToUSD        float64
	SessionTTL        time.Duration
	LinkTTL           time.Duration
	PreCheckoutMaxAge time.Duration
}

func (o *PaymentOptions) defaults() {
	if o.Currency == "" {
		o.Currency = "USD"
	}
	if o.StarsToUSD <= 0 {
		o.StarsToUSD = 0.02
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 24 * time.Hour
	}
	if o.LinkTTL <= 0 {
		o.LinkTTL = 24 * time.Hour
	}
	if o.PreCheckoutMaxAge <= 0 {
		o.PreCheckoutMaxAge = 15 * time.Minute
	}
}

// CardPaymentResult is returned by ProcessCardPayment, also on failure,
// so the caller can offer the other rail.
type CardPaymentResult struct {
	OK         bool      `json:"ok"`
	SessionID  string    `json:"session_id"`
	PaymentURL string    `json:"payment_url,omitempty"`
	LinkID     string    `json:"payment_link_id,omitempty"`
	Amount     float64   `json:"amount,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`

	FallbackAvailable bool   `json:"fallback_available,omitempty"`
	FallbackMethod    string `json:"fallback_method,omitempty"`
	// FallbackSessionID is a fresh pending session for the same plan when
	// the failed attempt closed the original one.
	FallbackSessionID string `json:"fallback_session_id,omitempty"`
}

// StarsPaymentResult has what the bot needs to send a native invoice.
type StarsPaymentResult struct {
	SessionID   string `json:"session_id"`
	Payload     string `json:"payload"`
	Stars       int    `json:"stars"`
	Currency    string `json:"currency"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type SessionStatusView struct {
	SessionID     string                 `json:"session_id"`
	Status        model.SessionStatus    `json:"status"`
	PaymentMethod model.PaymentMethod    `json:"payment_method,omitempty"`
	Plan          model.Plan             `json:"plan"`
	CreatedAt     time.Time              `json:"created_at"`
	ExpiresAt     time.Time              `json:"expires_at"`
	Attempts      []model.SessionAttempt `json:"attempts"`
}

type PaymentUseCase interface {
	Plans() []model.Plan
	CreateSession(ctx context.Context, tgID int64, username, planID string) (*model.PaymentSession, error)
	// ProcessCardPayment creates a hosted link. On ErrGatewayUnavailable the
	// result still tells the caller which rail to offer instead.
	ProcessCardPayment(ctx context.Context, sessionID, webhookURL string) (*CardPaymentResult, error)
	ProcessStarsPayment(ctx context.Context, sessionID string) (*StarsPaymentResult, error)
	// ConfirmPayment is idempotent: a second call for a completed session
	// returns the first result with Duplicate set.
	ConfirmPayment(ctx context.Context, c Confirmation) (*model.SubscriptionResult, error)
	CancelPayment(ctx context.Context, sessionID string) error
	GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatusView, error)
	ValidatePreCheckout(ctx context.Context, tgID int64, payload string, amount int, currency string) error

	// Webhook outcomes other than success.
	FailCardPayment(ctx context.Context, linkID, reason string) (*model.PaymentSession, error)
	ExpireCardLink(ctx context.Context, linkID string) (*model.PaymentSession, error)

	CleanupExpiredSessions(ctx context.Context) (int, error)
	ReconcileProcessing(ctx context.Context) (int, error)
	Refund(ctx context.Context, tgID int64, chargeID string, method model.PaymentMethod) error
	RevenueStats(ctx context.Context, days int) (*model.PaymentStats, error)
}

type paymentUC struct {
	sessions repository.SessionStore
	locker   repository.Locker
	gateway  adapter.PaymentGateway
	refunder adapter.StarsRefunder
	subs     SubscriptionUseCase
	plans    *model.PlanCatalog
	cfg      PaymentOptions
	log      *zerolog.Logger
	now      func() time.Time
}

func NewPaymentUseCase(
	sessions repository.SessionStore,
	locker repository.Locker,
	gateway adapter.PaymentGateway,
	refunder adapter.StarsRefunder,
	subs SubscriptionUseCase,
	plans *model.PlanCatalog,
	opts PaymentOptions,
	logger *zerolog.Logger,
) *paymentUC {
	opts.defaults()
	l := logger.With().Str("component", "payment_uc").Logger()
	return &paymentUC{
		sessions: sessions,
		locker:   locker,
		gateway:  gateway,
		refunder: refunder,
		subs:     subs,
		plans:    plans,
		cfg:      opts,
		log:      &l,
		now:      time.Now,
	}
}

func (uc *paymentUC) newSessionID(tgID int64) string {
	return fmt.Sprintf("pay_%d_%s", tgID, ulid.Make().String())
}

func (uc *paymentUC) Plans() []model.Plan { return uc.plans.List() }

func (uc *paymentUC) CreateSession(ctx context.Context, tgID int64, username, planID string) (*model.PaymentSession, error) {
	plan, err := uc.plans.Get(planID)
	if err != nil {
		return nil, err
	}
	s, err := model.NewPaymentSession(uc.newSessionID(tgID), tgID, username, plan, uc.now(), uc.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	if err := uc.sessions.Put(ctx, s); err != nil {
		return nil, err
	}
	metrics.IncSession(string(model.SessionPending))
	uc.log.Info().Str("session_id", s.ID).Int64("tg_id", tgID).Str("plan", plan.ID).Msg("payment session created")
	return s.Clone(), nil
}

// openSession loads a session that can still take a payment attempt.
func (uc *paymentUC) openSession(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	s, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.IsExpired(uc.now()) {
		return nil, domain.ErrSessionNotFound
	}
	if s.Status.Terminal() {
		return nil, domain.ErrSessionClosed
	}
	return s, nil
}

func (uc *paymentUC) ProcessCardPayment(ctx context.Context, sessionID, webhookURL string) (*CardPaymentResult, error) {
	s, err := uc.openSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res := &CardPaymentResult{
		SessionID: s.ID,
		Amount:    s.Plan.USDAmount(uc.cfg.StarsToUSD),
		Currency:  uc.cfg.Currency,
	}
	if s.Method == model.PaymentMethodCard && s.PaymentURL != "" {
		res.OK = true
		res.PaymentURL = s.PaymentURL
		res.LinkID = s.ExternalRef
		return res, nil
	}
	if uc.gateway == nil || !uc.gateway.Configured() {
		res.FallbackAvailable = true
		res.FallbackMethod = FallbackMethodStars
		uc.log.Warn().Str("session_id", s.ID).Msg("card gateway not configured; offering stars")
		return res, domain.ErrGatewayUnavailable
	}

	link, err := uc.gateway.CreatePaymentLink(ctx, adapter.PaymentLinkRequest{
		Amount:      res.Amount,
		Currency:    uc.cfg.Currency,
		Title:       s.Plan.Name,
		Description: fmt.Sprintf("%s, %d days of group access", s.Plan.Name, s.Plan.Days),
		Metadata: map[string]string{
			"telegram_id": strconv.FormatInt(s.TelegramID, 10),
			"plan_id":     s.Plan.ID,
			"session_id":  s.ID,
			"username":    s.Username,
		},
		ExpiresIn:  uc.cfg.LinkTTL,
		WebhookURL: webhookURL,
	})
	now := uc.now()
	if err != nil {
		uc.log.Error().Err(err).Str("session_id", s.ID).Msg("payment link creation failed")
		s.Method = model.PaymentMethodCard
		if cerr := s.Close(model.SessionFailed, model.AttemptFailed, err.Error(), now); cerr == nil {
			if perr := uc.sessions.Put(ctx, s); perr != nil {
				uc.log.Error().Err(perr).Str("session_id", s.ID).Msg("session update failed")
			}
			metrics.IncSession(string(model.SessionFailed))
		}
		metrics.IncPayment(string(model.PaymentMethodCard), "link_failed")

		res.FallbackAvailable = true
		res.FallbackMethod = FallbackMethodStars
		if next, nerr := uc.CreateSession(ctx, s.TelegramID, s.Username, s.Plan.ID); nerr == nil {
			res.FallbackSessionID = next.ID
		}
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			return res, err
		}
		return res, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	if err := s.StartProcessing(model.PaymentMethodCard, link.ID, now); err != nil {
		return nil, err
	}
	s.PaymentURL = link.URL
	if err := uc.sessions.Put(ctx, s); err != nil {
		return nil, err
	}
	metrics.IncSession(string(model.SessionProcessing))
	uc.log.Info().Str("session_id", s.ID).Str("link_id", link.ID).Msg("card payment link issued")

	res.OK = true
	res.PaymentURL = link.URL
	res.LinkID = link.ID
	res.ExpiresAt = link.ExpiresAt
	return res, nil
}

func (uc *paymentUC) ProcessStarsPayment(ctx context.Context, sessionID string) (*StarsPaymentResult, error) {
	s, err := uc.openSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	prevRef := s.ExternalRef
	s.PaymentURL = ""
	payload := fmt.Sprintf("stars:%s:%s", s.ID, uuid.NewString()[:8])
	if err := s.StartProcessing(model.PaymentMethodStars, payload, uc.now()); err != nil {
		return nil, err
	}
	if err := uc.sessions.Put(ctx, s); err != nil {
		return nil, err
	}
	metrics.IncSession(string(model.SessionProcessing))
	// a user switching from card to stars leaves an unused link behind
	if prevRef != "" && uc.gateway != nil && !isStarsPayload(prevRef) {
		uc.cancelLink(ctx, s.ID, prevRef)
	}
	return &StarsPaymentResult{
		SessionID:   s.ID,
		Payload:     payload,
		Stars:       s.Plan.Stars,
		Currency:    StarsCurrency,
		Title:       s.Plan.Name,
		Description: fmt.Sprintf("%d days of group access", s.Plan.Days),
	}, nil
}

func isStarsPayload(ref string) bool { return len(ref) > 6 && ref[:6] == "stars:" }

func (uc *paymentUC) cancelLink(ctx context.Context, sessionID, linkID string) {
	if err := uc.gateway.CancelPaymentLink(ctx, linkID); err != nil {
		uc.log.Warn().Err(err).Str("session_id", sessionID).Str("link_id", linkID).Msg("payment link cancel failed")
	}
}

func (uc *paymentUC) resolve(ctx context.Context, c Confirmation) (*model.PaymentSession, error) {
	id, ref := c.lookup()
	if id != "" {
		s, err := uc.sessions.Get(ctx, id)
		if err == nil || !errors.Is(err, domain.ErrSessionNotFound) || ref == "" {
			return s, err
		}
	}
	if ref == "" {
		return nil, domain.ErrSessionNotFound
	}
	s, err := uc.sessions.FindByRef(ctx, ref)
	if err == nil || !errors.Is(err, domain.ErrSessionNotFound) {
		return s, err
	}
	if s = c.orphan(uc); s != nil {
		uc.log.Warn().Str("ref", ref).Int64("tg_id", s.TelegramID).Msg("payment without session; rebuilt from metadata")
		if err := uc.sessions.Put(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, domain.ErrSessionNotFound
}

// lock serializes confirmations of one session. The returned func releases it.
func (uc *paymentUC) lock(ctx context.Context, sessionID string) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}
	key := "payment_session:" + sessionID
	token, err := uc.locker.TryLock(ctx, key, confirmLockTTL)
	if err != nil {
		return nil, err
	}
	return func() {
		// the caller's ctx may already be done
		if err := uc.locker.Unlock(context.Background(), key, token); err != nil {
			uc.log.Warn().Err(err).Str("session_id", sessionID).Msg("unlock failed")
		}
	}, nil
}

func (uc *paymentUC) ConfirmPayment(ctx context.Context, c Confirmation) (*model.SubscriptionResult, error) {
	method := string(c.Method())
	s, err := uc.resolve(ctx, c)
	if err != nil {
		return nil, err
	}
	if res, done, err := uc.settled(s); done {
		return res, err
	}

	// remote verification happens before any local mutation
	txID, err := c.verify(ctx, uc, s)
	if err != nil {
		if !errors.Is(err, domain.ErrPaymentNotConfirmed) {
			uc.log.Warn().Err(err).Str("session_id", s.ID).Str("method", method).Msg("payment verification failed")
		}
		return nil, err
	}

	unlock, err := uc.lock(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if s, err = uc.sessions.Get(ctx, s.ID); err != nil {
		return nil, err
	}
	if res, done, err := uc.settled(s); done {
		return res, err
	}

	now := uc.now()
	if s.Status == model.SessionPending {
		_, ref := c.lookup()
		if err := s.StartProcessing(c.Method(), ref, now); err != nil {
			return nil, err
		}
	}
	s.TransactionID = txID

	res, err := uc.subs.Activate(ctx, ActivateRequest{
		TelegramID:    s.TelegramID,
		Username:      s.Username,
		Method:        c.Method(),
		TransactionID: txID,
		Plan:          s.Plan,
		AmountUSD:     s.Plan.USDAmount(uc.cfg.StarsToUSD),
		SessionID:     s.ID,
	})
	if err != nil {
		// session stays processing so the confirmation can be retried
		if perr := uc.sessions.Put(ctx, s); perr != nil {
			uc.log.Error().Err(perr).Str("session_id", s.ID).Msg("session update failed")
		}
		metrics.IncPayment(method, "store_failed")
		uc.log.Error().Err(err).Str("session_id", s.ID).Str("tx", txID).Msg("paid but subscription write failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreWriteFailed, err)
	}

	if err := s.Close(model.SessionCompleted, model.AttemptPaid, txID, now); err != nil {
		return nil, err
	}
	s.Result = res
	if err := uc.sessions.Put(ctx, s); err != nil {
		// the subscription is durable; the transaction-id guard covers a retry
		uc.log.Error().Err(err).Str("session_id", s.ID).Msg("session completion not saved")
	}

	metrics.IncSession(string(model.SessionCompleted))
	if !res.Duplicate {
		metrics.IncPayment(method, "success")
		if c.Method() == model.PaymentMethodStars {
			metrics.AddPaymentRevenue(StarsCurrency, float64(s.Plan.Stars))
		} else {
			metrics.AddPaymentRevenue(uc.cfg.Currency, s.Plan.USDAmount(uc.cfg.StarsToUSD))
		}
	}
	uc.log.Info().
		Str("session_id", s.ID).
		Int64("tg_id", s.TelegramID).
		Str("method", method).
		Time("expires_at", res.ExpiresAt).
		Msg("payment confirmed")
	return res, nil
}

// settled short-circuits confirmations of sessions that are already closed.
func (uc *paymentUC) settled(s *model.PaymentSession) (*model.SubscriptionResult, bool, error) {
	if !s.Status.Terminal() {
		return nil, false, nil
	}
	if s.Status == model.SessionCompleted && s.Result != nil {
		dup := *s.Result
		dup.Duplicate = true
		return &dup, true, nil
	}
	uc.log.Error().Str("session_id", s.ID).Str("status", string(s.Status)).Msg("confirmation for closed session")
	return nil, true, domain.ErrSessionClosed
}

func (uc *paymentUC) CancelPayment(ctx context.Context, sessionID string) error {
	unlock, err := uc.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	s, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status.Terminal() {
		return nil
	}
	if err := s.Close(model.SessionCancelled, model.AttemptCanceled, "user", uc.now()); err != nil {
		return err
	}
	if err := uc.sessions.Put(ctx, s); err != nil {
		return err
	}
	metrics.IncSession(string(model.SessionCancelled))
	if s.Method == model.PaymentMethodCard && s.ExternalRef != "" && uc.gateway != nil {
		uc.cancelLink(ctx, s.ID, s.ExternalRef)
	}
	return nil
}

func (uc *paymentUC) GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatusView, error) {
	s, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionStatusView{
		SessionID:     s.ID,
		Status:        s.Status,
		PaymentMethod: s.Method,
		Plan:          s.Plan,
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
		Attempts:      s.Attempts,
	}, nil
}

func (uc *paymentUC) ValidatePreCheckout(ctx context.Context, tgID int64, payload string, amount int, currency string) error {
	s, err := uc.sessions.FindByRef(ctx, payload)
	if err != nil {
		return err
	}
	now := uc.now()
	switch {
	case s.Status != model.SessionProcessing || s.Method != model.PaymentMethodStars:
		return domain.ErrSessionClosed
	case s.IsExpired(now) || now.Sub(s.ProcessingAt) > uc.cfg.PreCheckoutMaxAge:
		return fmt.Errorf("%w: invoice is too old", domain.ErrSessionNotFound)
	case s.TelegramID != tgID:
		return fmt.Errorf("%w: invoice belongs to another user", domain.ErrPaymentMismatch)
	case currency != StarsCurrency || amount != s.Plan.Stars:
		return fmt.Errorf("%w: %d %s", domain.ErrPaymentMismatch, amount, currency)
	}
	return nil
}

// closeByRef moves the session bound to a payment link into a terminal status.
func (uc *paymentUC) closeByRef(ctx context.Context, linkID string, status model.SessionStatus, outcome, detail string) (*model.PaymentSession, error) {
	s, err := uc.sessions.FindByRef(ctx, linkID)
	if err != nil {
		return nil, err
	}
	unlock, err := uc.lock(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if s, err = uc.sessions.Get(ctx, s.ID); err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		return s, nil
	}
	if err := s.Close(status, outcome, detail, uc.now()); err != nil {
		return nil, err
	}
	if err := uc.sessions.Put(ctx, s); err != nil {
		return nil, err
	}
	metrics.IncSession(string(status))
	return s, nil
}

// FailCardPayment records a declined card attempt. The link stays payable,
// so the session is left processing until it succeeds or expires.
func (uc *paymentUC) FailCardPayment(ctx context.Context, linkID, reason string) (*model.PaymentSession, error) {
	s, err := uc.sessions.FindByRef(ctx, linkID)
	if err != nil {
		return nil, err
	}
	unlock, err := uc.lock(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if s, err = uc.sessions.Get(ctx, s.ID); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(model.PaymentMethodCard), "failed")
	if err := s.RecordAttempt(model.AttemptFailed, reason, uc.now()); err != nil {
		return s, nil
	}
	if err := uc.sessions.Put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (uc *paymentUC) ExpireCardLink(ctx context.Context, linkID string) (*model.PaymentSession, error) {
	return uc.closeByRef(ctx, linkID, model.SessionExpired, model.AttemptExpired, "payment link expired")
}

func (uc *paymentUC) CleanupExpiredSessions(ctx context.Context) (int, error) {
	now := uc.now()
	stale, err := uc.sessions.Sweep(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, cand := range stale {
		if uc.expireOne(ctx, cand.ID, now) {
			expired++
		}
	}
	pruned, err := uc.sessions.DeleteClosedBefore(ctx, now.Add(-closedRetention))
	if err != nil {
		uc.log.Warn().Err(err).Msg("closed session prune failed")
	}
	if expired > 0 || pruned > 0 {
		uc.log.Info().Int("expired", expired).Int("pruned", pruned).Msg("payment sessions swept")
	}
	return expired, nil
}

func (uc *paymentUC) expireOne(ctx context.Context, id string, now time.Time) bool {
	unlock, err := uc.lock(ctx, id)
	if err != nil {
		uc.log.Warn().Err(err).Str("session_id", id).Msg("session busy; expiring next sweep")
		return false
	}
	defer unlock()

	s, err := uc.sessions.Get(ctx, id)
	if err != nil || !s.IsExpired(now) {
		return false
	}
	if err := s.Close(model.SessionExpired, model.AttemptExpired, "session ttl", now); err != nil {
		return false
	}
	if err := uc.sessions.Put(ctx, s); err != nil {
		uc.log.Error().Err(err).Str("session_id", id).Msg("session expiry not saved")
		return false
	}
	metrics.IncSession(string(model.SessionExpired))
	if s.Method == model.PaymentMethodCard && s.ExternalRef != "" && uc.gateway != nil {
		uc.cancelLink(ctx, s.ID, s.ExternalRef)
	}
	return true
}

// ReconcileProcessing polls card sessions whose webhook never arrived.
func (uc *paymentUC) ReconcileProcessing(ctx context.Context) (int, error) {
	if uc.gateway == nil || !uc.gateway.Configured() {
		return 0, nil
	}
	open, err := uc.sessions.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	confirmed := 0
	for _, s := range open {
		if ctx.Err() != nil {
			return confirmed, ctx.Err()
		}
		if s.Status != model.SessionProcessing || s.Method != model.PaymentMethodCard || s.ExternalRef == "" {
			continue
		}
		res, err := uc.ConfirmPayment(ctx, CardConfirmation{SessionID: s.ID, LinkID: s.ExternalRef})
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrPaymentNotConfirmed):
			continue
		default:
			uc.log.Warn().Err(err).Str("session_id", s.ID).Msg("reconcile confirm failed")
			continue
		}
		if res.Duplicate {
			continue
		}
		confirmed++
		if _, err := uc.subs.GrantAccess(ctx, res); err != nil {
			uc.log.Warn().Err(err).Str("session_id", s.ID).Msg("access grant after reconcile failed")
		}
	}
	return confirmed, nil
}

func (uc *paymentUC) Refund(ctx context.Context, tgID int64, chargeID string, method model.PaymentMethod) error {
	if tgID <= 0 || chargeID == "" {
		return domain.ErrInvalidArgument
	}
	details := map[string]any{"charge_id": chargeID, "method": string(method)}
	switch method {
	case model.PaymentMethodStars:
		if uc.refunder == nil {
			return fmt.Errorf("%w: stars refunds not wired", domain.ErrInvalidArgument)
		}
		if err := uc.refunder.RefundStarPayment(ctx, tgID, chargeID); err != nil {
			return err
		}
	case model.PaymentMethodCard:
		details["manual"] = true
		uc.log.Warn().Int64("tg_id", tgID).Str("charge_id", chargeID).Msg("card refund requires manual processing")
	default:
		return domain.ErrInvalidArgument
	}
	metrics.IncPayment(string(method), "refunded")
	return uc.subs.LogActivity(ctx, tgID, model.ActionPaymentRefunded, details)
}

func (uc *paymentUC) RevenueStats(ctx context.Context, days int) (*model.PaymentStats, error) {
	return uc.subs.PaymentStats(ctx, days)
}
