//go:build !integration

package telegram

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/infra/i18n"
	"telegram-group-subscription/internal/usecase"
)

type rawCall struct {
	Endpoint string
	Params   tgbotapi.Params
}

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	raw      []rawCall

	RequestFunc func(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

var _ BotClient = (*fakeBot)(nil)

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, c)
	f.mu.Unlock()
	if f.RequestFunc != nil {
		return f.RequestFunc(c)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(f.raw, rawCall{Endpoint: endpoint, Params: params})
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

// texts returns the text of every plain message sent so far.
func (f *fakeBot) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeBot) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if m, ok := f.sent[i].(tgbotapi.MessageConfig); ok {
			return m
		}
	}
	t.Fatal("no message was sent")
	return tgbotapi.MessageConfig{}
}

func silentLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func newTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	require.NoError(t, err)
	return tr
}

func newTestClient(t *testing.T, api *fakeBot) *Client {
	t.Helper()
	c := NewClient(api, -100123, newTranslator(t), silentLogger())
	c.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

// ===== use case mocks =====

type mockPaymentUC struct {
	usecase.PaymentUseCase

	PlansList              []model.Plan
	CreateSessionFunc      func(ctx context.Context, tgID int64, username, planID string) (*model.PaymentSession, error)
	ProcessStarsFunc       func(ctx context.Context, sessionID string) (*usecase.StarsPaymentResult, error)
	ProcessCardFunc        func(ctx context.Context, sessionID, webhookURL string) (*usecase.CardPaymentResult, error)
	ConfirmPaymentFunc     func(ctx context.Context, c usecase.Confirmation) (*model.SubscriptionResult, error)
	ValidatePreCheckoutErr error
	Cancelled              []string
}

func (m *mockPaymentUC) Plans() []model.Plan { return m.PlansList }

func (m *mockPaymentUC) CreateSession(ctx context.Context, tgID int64, username, planID string) (*model.PaymentSession, error) {
	return m.CreateSessionFunc(ctx, tgID, username, planID)
}

func (m *mockPaymentUC) ProcessStarsPayment(ctx context.Context, sessionID string) (*usecase.StarsPaymentResult, error) {
	return m.ProcessStarsFunc(ctx, sessionID)
}

func (m *mockPaymentUC) ProcessCardPayment(ctx context.Context, sessionID, webhookURL string) (*usecase.CardPaymentResult, error) {
	return m.ProcessCardFunc(ctx, sessionID, webhookURL)
}

func (m *mockPaymentUC) ConfirmPayment(ctx context.Context, c usecase.Confirmation) (*model.SubscriptionResult, error) {
	return m.ConfirmPaymentFunc(ctx, c)
}

func (m *mockPaymentUC) ValidatePreCheckout(ctx context.Context, tgID int64, payload string, amount int, currency string) error {
	return m.ValidatePreCheckoutErr
}

func (m *mockPaymentUC) CancelPayment(ctx context.Context, sessionID string) error {
	m.Cancelled = append(m.Cancelled, sessionID)
	return nil
}

type mockSubscriptionUC struct {
	usecase.SubscriptionUseCase

	Users   map[int64]*model.User
	Granted []*model.SubscriptionResult
}

func (m *mockSubscriptionUC) GetUser(ctx context.Context, tgID int64) (*model.User, error) {
	if u, ok := m.Users[tgID]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubscriptionUC) GetOrCreateUser(ctx context.Context, tgID int64, username string) (*model.User, error) {
	if m.Users == nil {
		m.Users = map[int64]*model.User{}
	}
	u := &model.User{TelegramID: tgID, Username: username, Status: model.SubscriptionExpired}
	m.Users[tgID] = u
	return u, nil
}

func (m *mockSubscriptionUC) GrantAccess(ctx context.Context, res *model.SubscriptionResult) (string, error) {
	m.Granted = append(m.Granted, res)
	return "https://t.me/+invite", nil
}

type mockLimiter struct{ allowed bool }

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return m.allowed, nil
}
