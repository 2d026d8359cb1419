package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PaymentSweeper is the part of the payment use case the sweeper drives.
type PaymentSweeper interface {
	CleanupExpiredSessions(ctx context.Context) (int, error)
	ReconcileProcessing(ctx context.Context) (int, error)
}

// SessionSweeper periodically expires stale payment sessions and polls the
// gateway for card sessions whose webhook never arrived.
type SessionSweeper struct {
	uc       PaymentSweeper
	interval time.Duration
	log      *zerolog.Logger
}

func NewSessionSweeper(uc PaymentSweeper, interval time.Duration, logger *zerolog.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	l := logger.With().Str("component", "session_sweeper").Logger()
	return &SessionSweeper{uc: uc, interval: interval, log: &l}
}

// Run blocks until ctx is cancelled.
func (w *SessionSweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting session sweeper")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session sweeper")
			return ctx.Err()
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one sweep followed by one reconciliation pass.
func (w *SessionSweeper) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("session sweep panicked")
		}
	}()

	expired, err := w.uc.CleanupExpiredSessions(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("session cleanup failed")
	}
	confirmed, err := w.uc.ReconcileProcessing(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("card session reconcile failed")
	}
	if expired > 0 || confirmed > 0 {
		w.log.Info().Int("expired", expired).Int("confirmed", confirmed).Msg("session sweep done")
	}
}
