//go:build !integration

package web

import (
	"context"
	"time"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/usecase"
)

// Only the methods the admin API calls are implemented; the embedded
// interfaces panic if anything else is reached.

type mockSubUC struct {
	usecase.SubscriptionUseCase

	Users          map[int64]*model.User
	Whitelisted    []int64
	BulkCalls      [][]int64
	ExtendFunc     func(ctx context.Context, tgID int64, days int) (time.Time, error)
	CancelReasons  map[int64]string
	RemoveErr      error
	ActivityResult []*model.ActivityLogEntry
}

func newMockSubUC() *mockSubUC {
	return &mockSubUC{Users: map[int64]*model.User{}, CancelReasons: map[int64]string{}}
}

func (m *mockSubUC) GetUser(ctx context.Context, tgID int64) (*model.User, error) {
	u, ok := m.Users[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}
func (m *mockSubUC) Activity(ctx context.Context, tgID int64, action model.ActivityAction, limit int) ([]*model.ActivityLogEntry, error) {
	return m.ActivityResult, nil
}
func (m *mockSubUC) Whitelist(ctx context.Context, tgID int64, username string) error {
	m.Whitelisted = append(m.Whitelisted, tgID)
	return nil
}
func (m *mockSubUC) BulkWhitelist(ctx context.Context, ids []int64) (int, error) {
	m.BulkCalls = append(m.BulkCalls, ids)
	return len(ids), nil
}
func (m *mockSubUC) RemoveFromWhitelist(ctx context.Context, tgID int64) error { return m.RemoveErr }
func (m *mockSubUC) ListWhitelisted(ctx context.Context) ([]*model.User, error) {
	var out []*model.User
	for _, u := range m.Users {
		if u.Status == model.SubscriptionWhitelisted {
			out = append(out, u)
		}
	}
	return out, nil
}
func (m *mockSubUC) Extend(ctx context.Context, tgID int64, days int) (time.Time, error) {
	return m.ExtendFunc(ctx, tgID, days)
}
func (m *mockSubUC) Cancel(ctx context.Context, tgID int64, reason string) error {
	m.CancelReasons[tgID] = reason
	return nil
}

type mockPayUC struct {
	usecase.PaymentUseCase

	Refunds []string
}

func (m *mockPayUC) Refund(ctx context.Context, tgID int64, chargeID string, method model.PaymentMethod) error {
	m.Refunds = append(m.Refunds, chargeID)
	return nil
}
func (m *mockPayUC) GetSessionStatus(ctx context.Context, id string) (*usecase.SessionStatusView, error) {
	return nil, domain.ErrSessionNotFound
}

type mockStatsUC struct {
	usecase.StatsUseCase

	Days int
}

func (m *mockStatsUC) Report(ctx context.Context, days int) (*usecase.Report, error) {
	m.Days = days
	return &usecase.Report{
		Subscriptions: &model.SubscriptionStats{Total: 3, Active: 2},
		Payments:      &model.PaymentStats{Days: days},
	}, nil
}

type mockBroadcastUC struct{}

func (m *mockBroadcastUC) BroadcastMessage(ctx context.Context, msg string) (int, error) {
	if msg == "" {
		return 0, domain.ErrInvalidArgument
	}
	return 2, nil
}

type mockScheduler struct {
	Runs int
}

func (m *mockScheduler) RunOnce(ctx context.Context) error {
	m.Runs++
	return nil
}
