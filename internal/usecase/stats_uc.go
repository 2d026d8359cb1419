package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/repository"
	"telegram-group-subscription/internal/infra/metrics"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// Report is the aggregate emitted once per scheduler run and served to admins.
type Report struct {
	GeneratedAt   time.Time                `json:"generated_at"`
	Subscriptions *model.SubscriptionStats `json:"subscriptions"`
	Payments      *model.PaymentStats      `json:"payments"`
	OpenSessions  int                      `json:"open_sessions"`
}

type StatsUseCase interface {
	Report(ctx context.Context, paymentDays int) (*Report, error)
	// LogDaily builds the report, publishes the status gauges and logs it.
	LogDaily(ctx context.Context) (*Report, error)
}

type statsUC struct {
	subs     SubscriptionUseCase
	sessions repository.SessionStore

	log *zerolog.Logger
}

func NewStatsUseCase(subs SubscriptionUseCase, sessions repository.SessionStore, logger *zerolog.Logger) *statsUC {
	l := logger.With().Str("component", "stats_uc").Logger()
	return &statsUC{subs: subs, sessions: sessions, log: &l}
}

func (s *statsUC) Report(ctx context.Context, paymentDays int) (*Report, error) {
	subs, err := s.subs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	pay, err := s.subs.PaymentStats(ctx, paymentDays)
	if err != nil {
		return nil, err
	}
	r := &Report{GeneratedAt: time.Now().UTC(), Subscriptions: subs, Payments: pay}
	if s.sessions != nil {
		open, err := s.sessions.ListOpen(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("open session count unavailable")
		} else {
			r.OpenSessions = len(open)
		}
	}
	return r, nil
}

func (s *statsUC) LogDaily(ctx context.Context) (*Report, error) {
	r, err := s.Report(ctx, 1)
	if err != nil {
		return nil, err
	}
	metrics.SetSubscriptionsByStatus(string(model.SubscriptionActive), r.Subscriptions.Active)
	metrics.SetSubscriptionsByStatus(string(model.SubscriptionExpired), r.Subscriptions.Expired)
	metrics.SetSubscriptionsByStatus(string(model.SubscriptionWhitelisted), r.Subscriptions.Whitelisted)

	s.log.Info().
		Int("total", r.Subscriptions.Total).
		Int("active", r.Subscriptions.Active).
		Int("expired", r.Subscriptions.Expired).
		Int("whitelisted", r.Subscriptions.Whitelisted).
		Int("expiring_in_week", r.Subscriptions.ExpiringInWeek).
		Int("payments_ok", r.Payments.Successful).
		Int("payments_failed", r.Payments.Failed).
		Float64("card_usd", r.Payments.CardUSD).
		Int64("stars", r.Payments.StarsTotal).
		Int("open_sessions", r.OpenSessions).
		Msg("daily statistics")
	return r, nil
}
