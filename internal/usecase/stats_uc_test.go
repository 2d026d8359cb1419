//go:build !integration

package usecase_test

import (
	"context"
	"testing"

	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/usecase"
)

func TestStatsUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("Report should combine subscription, payment and session figures", func(t *testing.T) {
		// --- Arrange ---
		f := newFixture()
		f.users.Put(&model.User{TelegramID: 1, Status: model.SubscriptionWhitelisted})
		_, _ = f.subs.Activate(ctx, activateReq(2, "int_2"))
		_, _ = f.payments.CreateSession(ctx, 3, "", "basic")

		uc := usecase.NewStatsUseCase(f.subs, f.sessions, newTestLogger())

		// --- Act ---
		r, err := uc.Report(ctx, 7)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got %v", err)
		}
		if r.Subscriptions.Total != 2 || r.Subscriptions.Active != 1 || r.Subscriptions.Whitelisted != 1 {
			t.Errorf("unexpected subscription stats %+v", r.Subscriptions)
		}
		if r.Payments.Days != 7 || r.Payments.Successful != 1 {
			t.Errorf("unexpected payment stats %+v", r.Payments)
		}
		if r.OpenSessions != 1 {
			t.Errorf("expected 1 open session, got %d", r.OpenSessions)
		}
	})

	t.Run("LogDaily should work without a session store", func(t *testing.T) {
		f := newFixture()
		uc := usecase.NewStatsUseCase(f.subs, nil, newTestLogger())

		r, err := uc.LogDaily(ctx)

		if err != nil {
			t.Fatalf("expected no error, but got %v", err)
		}
		if r.Payments.Days != 1 {
			t.Errorf("daily report covers one day, got %d", r.Payments.Days)
		}
	})
}
