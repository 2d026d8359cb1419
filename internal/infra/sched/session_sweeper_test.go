//go:build !integration

package sched_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/infra/sched"
)

type mockPaymentSweeper struct {
	CleanupFunc   func(ctx context.Context) (int, error)
	ReconcileFunc func(ctx context.Context) (int, error)
	cleanups      int
	reconciles    int
}

func (m *mockPaymentSweeper) CleanupExpiredSessions(ctx context.Context) (int, error) {
	m.cleanups++
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx)
	}
	return 0, nil
}

func (m *mockPaymentSweeper) ReconcileProcessing(ctx context.Context) (int, error) {
	m.reconciles++
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx)
	}
	return 0, nil
}

func TestSessionSweeper(t *testing.T) {
	logger := zerolog.New(io.Discard)

	t.Run("should reconcile even when cleanup fails", func(t *testing.T) {
		// Arrange
		uc := &mockPaymentSweeper{CleanupFunc: func(context.Context) (int, error) { return 0, errors.New("redis down") }}
		w := sched.NewSessionSweeper(uc, time.Minute, &logger)

		// Act
		w.Tick(context.Background())

		// Assert
		if uc.cleanups != 1 || uc.reconciles != 1 {
			t.Errorf("expected one cleanup and one reconcile, got %d/%d", uc.cleanups, uc.reconciles)
		}
	})

	t.Run("should survive a panicking pass", func(t *testing.T) {
		uc := &mockPaymentSweeper{ReconcileFunc: func(context.Context) (int, error) { panic("boom") }}
		w := sched.NewSessionSweeper(uc, time.Minute, &logger)

		w.Tick(context.Background())
	})

	t.Run("should tick until cancelled", func(t *testing.T) {
		ticked := make(chan struct{}, 1)
		uc := &mockPaymentSweeper{CleanupFunc: func(context.Context) (int, error) {
			select {
			case ticked <- struct{}{}:
			default:
			}
			return 1, nil
		}}
		w := sched.NewSessionSweeper(uc, 10*time.Millisecond, &logger)
		ctx, cancel := context.WithCancel(context.Background())

		errc := make(chan error, 1)
		go func() { errc <- w.Run(ctx) }()

		select {
		case <-ticked:
		case <-time.After(2 * time.Second):
			t.Fatal("sweeper never ticked")
		}
		cancel()
		if err := <-errc; !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
