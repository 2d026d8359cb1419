package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/config"
	"telegram-group-subscription/internal/infra/metrics"
	"telegram-group-subscription/internal/usecase"
)

// Lifecycle is what a daily run needs from the subscription use case.
type Lifecycle interface {
	ExpireOverdue(ctx context.Context) (int, error)
	SendReminders(ctx context.Context, leadDays []int) (int, error)
	CleanupAudit(ctx context.Context, retentionDays int) (int64, error)
}

// StatsLogger writes the daily aggregate to the log.
type StatsLogger interface {
	LogDaily(ctx context.Context) (*usecase.Report, error)
}

var ErrAlreadyRunning = errors.New("scheduler run already in progress")

// Scheduler runs the subscription lifecycle once a day at a fixed UTC
// wall-clock time.
type Scheduler struct {
	hour, minute  int
	reminderDays  []int
	retentionDays int
	runTimeout    time.Duration

	lifecycle Lifecycle
	stats     StatsLogger
	log       *zerolog.Logger
	now       func() time.Time

	runMu sync.Mutex // one run at a time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(cfg config.SchedulerConfig, lifecycle Lifecycle, stats StatsLogger, logger *zerolog.Logger) (*Scheduler, error) {
	h, m, err := config.ParseClock(cfg.DailyAt)
	if err != nil {
		return nil, fmt.Errorf("scheduler daily_at %q: %w", cfg.DailyAt, err)
	}
	l := logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		hour:          h,
		minute:        m,
		reminderDays:  cfg.ReminderDays,
		retentionDays: cfg.AuditRetentionDays,
		runTimeout:    cfg.RunTimeout,
		lifecycle:     lifecycle,
		stats:         stats,
		log:           &l,
		now:           time.Now,
	}, nil
}

// NextRun returns the first hour:minute UTC strictly after now.
func NextRun(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start launches the loop; calling it while running has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.log.Info().Str("daily_at", fmt.Sprintf("%02d:%02d UTC", s.hour, s.minute)).Msg("Scheduler started")
	for {
		next := NextRun(s.now(), s.hour, s.minute)
		timer := time.NewTimer(time.Until(next))
		s.log.Debug().Time("next_run", next).Msg("Scheduler sleeping")

		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("Scheduler stopped")
			return
		case <-timer.C:
			if err := s.RunOnce(ctx); err != nil {
				// logged inside; the next day still runs
				continue
			}
		}
	}
}

// Stop cancels the sleeping loop and waits for it. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce performs one lifecycle pass: expire, remind, clean up, report.
// A failing step is logged and the remaining steps still run; the first
// error is returned. Panics are recovered into an error.
func (s *Scheduler) RunOnce(ctx context.Context) (err error) {
	if !s.runMu.TryLock() {
		return ErrAlreadyRunning
	}
	defer s.runMu.Unlock()

	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler run panicked: %v", r)
		}
		metrics.IncSchedulerRun(err)
		ev := s.log.Info()
		if err != nil {
			ev = s.log.Error().Err(err)
		}
		ev.Dur("took", s.now().Sub(start)).Msg("Scheduler run finished")
	}()

	var firstErr error
	keep := func(step string, e error) {
		if e == nil {
			return
		}
		s.log.Error().Err(e).Str("step", step).Msg("Scheduler step failed")
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", step, e)
		}
	}

	expired, e := s.lifecycle.ExpireOverdue(ctx)
	keep("expire_overdue", e)

	reminded, e := s.lifecycle.SendReminders(ctx, s.reminderDays)
	keep("send_reminders", e)

	var purged int64
	if s.retentionDays > 0 {
		purged, e = s.lifecycle.CleanupAudit(ctx, s.retentionDays)
		keep("cleanup_audit", e)
	}

	if s.stats != nil {
		_, e = s.stats.LogDaily(ctx)
		keep("daily_stats", e)
	}

	s.log.Info().
		Int("expired", expired).
		Int("reminders", reminded).
		Int64("audit_purged", purged).
		Msg("Scheduler run summary")
	return firstErr
}
