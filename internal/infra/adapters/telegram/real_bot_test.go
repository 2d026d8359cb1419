//go:build !integration

package telegram

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/usecase"
)

type botFixture struct {
	api  *fakeBot
	pay  *mockPaymentUC
	subs *mockSubscriptionUC
	bot  *RealTelegramBotAdapter
}

func newBotFixture(t *testing.T, limiter RateLimiter) *botFixture {
	t.Helper()
	f := &botFixture{api: &fakeBot{}, pay: &mockPaymentUC{}, subs: &mockSubscriptionUC{}}
	bot, err := NewRealTelegramBotAdapter(newTestClient(t, f.api), f.pay, f.subs, limiter, "https://bot.example/webhook/airwallex", 1, silentLogger())
	require.NoError(t, err)
	f.bot = bot
	return f
}

func commandUpdate(tgID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: tgID, UserName: "ada"},
		Chat:     &tgbotapi.Chat{ID: tgID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func callbackUpdate(tgID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cbq-1",
		From:    &tgbotapi.User{ID: tgID, UserName: "ada"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: tgID}},
		Data:    data,
	}}
}

func TestHandleUpdate_Commands(t *testing.T) {
	ctx := context.Background()

	t.Run("should register the user on /start", func(t *testing.T) {
		f := newBotFixture(t, nil)

		require.NoError(t, f.bot.HandleUpdate(ctx, commandUpdate(42, "/start")))

		assert.Contains(t, f.subs.Users, int64(42))
		assert.Equal(t, f.bot.tr.T("welcome_message"), f.api.lastMessage(t).Text)
	})

	t.Run("should list plans on /subscribe", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.PlansList = model.DefaultPlans()

		require.NoError(t, f.bot.HandleUpdate(ctx, commandUpdate(42, "/subscribe")))

		markup := f.api.lastMessage(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		require.Len(t, markup.InlineKeyboard, 3)
		assert.Equal(t, "plan:basic", *markup.InlineKeyboard[0][0].CallbackData)
	})

	t.Run("should describe the subscription on /status", func(t *testing.T) {
		f := newBotFixture(t, nil)
		next := model.DateOf(time.Now()).AddDate(0, 0, 5)
		f.subs.Users = map[int64]*model.User{
			42: {TelegramID: 42, Status: model.SubscriptionActive, NextPaymentDate: &next},
			43: {TelegramID: 43, Status: model.SubscriptionWhitelisted},
		}

		require.NoError(t, f.bot.HandleUpdate(ctx, commandUpdate(42, "/status")))
		require.NoError(t, f.bot.HandleUpdate(ctx, commandUpdate(43, "/status")))
		require.NoError(t, f.bot.HandleUpdate(ctx, commandUpdate(44, "/status")))

		texts := f.api.texts()
		require.Len(t, texts, 3)
		assert.Contains(t, texts[0], next.Format("2006-01-02"))
		assert.Contains(t, texts[0], "5 days left")
		assert.Equal(t, f.bot.tr.T("status_whitelisted"), texts[1])
		assert.Equal(t, f.bot.tr.T("status_none"), texts[2])
	})

	t.Run("should answer rate-limited users without running the command", func(t *testing.T) {
		f := newBotFixture(t, &mockLimiter{allowed: false})

		require.NoError(t, f.bot.HandleUpdate(ctx, commandUpdate(42, "/start")))

		assert.Empty(t, f.subs.Users)
		assert.Equal(t, f.bot.tr.T("rate_limited"), f.api.lastMessage(t).Text)
	})

	t.Run("should ignore plain text", func(t *testing.T) {
		f := newBotFixture(t, nil)
		up := commandUpdate(42, "hello")
		up.Message.Entities = nil

		require.NoError(t, f.bot.HandleUpdate(ctx, up))

		assert.Empty(t, f.api.sent)
	})
}

func TestHandleUpdate_Callbacks(t *testing.T) {
	ctx := context.Background()
	plan := model.DefaultPlans()[0]

	t.Run("should open a session and offer both rails", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.CreateSessionFunc = func(_ context.Context, tgID int64, username, planID string) (*model.PaymentSession, error) {
			assert.Equal(t, "basic", planID)
			return &model.PaymentSession{ID: "pay_42_01H", TelegramID: tgID, Plan: plan}, nil
		}

		require.NoError(t, f.bot.HandleUpdate(ctx, callbackUpdate(42, "plan:basic")))

		markup := f.api.lastMessage(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		assert.Equal(t, "stars:pay_42_01H", *markup.InlineKeyboard[0][0].CallbackData)
		assert.Equal(t, "card:pay_42_01H", *markup.InlineKeyboard[1][0].CallbackData)
		assert.Equal(t, "cancel:pay_42_01H", *markup.InlineKeyboard[2][0].CallbackData)
		_, answered := f.api.requests[len(f.api.requests)-1].(tgbotapi.CallbackConfig)
		assert.True(t, answered, "the callback is answered")
	})

	t.Run("should report an unknown plan", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.CreateSessionFunc = func(context.Context, int64, string, string) (*model.PaymentSession, error) {
			return nil, domain.ErrUnknownPlan
		}

		require.NoError(t, f.bot.HandleUpdate(ctx, callbackUpdate(42, "plan:gold")))

		assert.Equal(t, f.bot.tr.T("unknown_plan"), f.api.lastMessage(t).Text)
	})

	t.Run("should send a Stars invoice", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.ProcessStarsFunc = func(_ context.Context, id string) (*usecase.StarsPaymentResult, error) {
			return &usecase.StarsPaymentResult{SessionID: id, Payload: "stars:" + id + ":n", Stars: 50, Currency: "XTR", Title: "Basic"}, nil
		}

		require.NoError(t, f.bot.HandleUpdate(ctx, callbackUpdate(42, "stars:pay_42_01H")))

		require.Len(t, f.api.sent, 1)
		_, ok := f.api.sent[0].(tgbotapi.InvoiceConfig)
		assert.True(t, ok)
	})

	t.Run("should hand out the card link with the webhook url", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.ProcessCardFunc = func(_ context.Context, id, hook string) (*usecase.CardPaymentResult, error) {
			assert.Equal(t, "https://bot.example/webhook/airwallex", hook)
			return &usecase.CardPaymentResult{OK: true, SessionID: id, PaymentURL: "https://pay.example/l/1", Amount: 1, Currency: "USD", ExpiresAt: time.Now().Add(time.Hour)}, nil
		}

		require.NoError(t, f.bot.HandleUpdate(ctx, callbackUpdate(42, "card:pay_42_01H")))

		markup := f.api.lastMessage(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		assert.Equal(t, "https://pay.example/l/1", *markup.InlineKeyboard[0][0].URL)
		assert.Equal(t, "paid:pay_42_01H", *markup.InlineKeyboard[1][0].CallbackData)
	})

	t.Run("should offer Stars when the card gateway is down", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.ProcessCardFunc = func(_ context.Context, id, _ string) (*usecase.CardPaymentResult, error) {
			return &usecase.CardPaymentResult{SessionID: id, FallbackAvailable: true, FallbackMethod: "stars", FallbackSessionID: "pay_42_02J"}, domain.ErrGatewayUnavailable
		}

		require.NoError(t, f.bot.HandleUpdate(ctx, callbackUpdate(42, "card:pay_42_01H")))

		msg := f.api.lastMessage(t)
		assert.Equal(t, f.bot.tr.T("card_unavailable"), msg.Text)
		markup := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		assert.Equal(t, "stars:pay_42_02J", *markup.InlineKeyboard[0][0].CallbackData)
	})

	t.Run("should grant access after a confirmed I've paid", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.ConfirmPaymentFunc = func(_ context.Context, c usecase.Confirmation) (*model.SubscriptionResult, error) {
			card, ok := c.(usecase.CardConfirmation)
			require.True(t, ok)
			assert.Equal(t, "pay_42_01H", card.SessionID)
			return &model.SubscriptionResult{TelegramID: 42, PlanName: "Basic"}, nil
		}

		require.NoError(t, f.bot.HandleUpdate(ctx, callbackUpdate(42, "paid:pay_42_01H")))

		assert.Len(t, f.subs.Granted, 1)
	})

	t.Run("should ask to wait while the provider has not confirmed", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.ConfirmPaymentFunc = func(context.Context, usecase.Confirmation) (*model.SubscriptionResult, error) {
			return nil, domain.ErrPaymentNotConfirmed
		}

		require.NoError(t, f.bot.HandleUpdate(ctx, callbackUpdate(42, "paid:pay_42_01H")))

		assert.Empty(t, f.subs.Granted)
		assert.Equal(t, f.bot.tr.T("card_not_confirmed"), f.api.lastMessage(t).Text)
	})

	t.Run("should refuse another user's session", func(t *testing.T) {
		f := newBotFixture(t, nil)

		require.NoError(t, f.bot.HandleUpdate(ctx, callbackUpdate(7, "cancel:pay_42_01H")))

		assert.Empty(t, f.pay.Cancelled)
	})

	t.Run("should cancel the caller's session", func(t *testing.T) {
		f := newBotFixture(t, nil)

		require.NoError(t, f.bot.HandleUpdate(ctx, callbackUpdate(42, "cancel:pay_42_01H")))

		assert.Equal(t, []string{"pay_42_01H"}, f.pay.Cancelled)
		assert.Equal(t, f.bot.tr.T("payment_cancelled"), f.api.lastMessage(t).Text)
	})

	t.Run("should error on unknown callback data", func(t *testing.T) {
		f := newBotFixture(t, nil)
		assert.Error(t, f.bot.HandleUpdate(ctx, callbackUpdate(42, "cmd:menu")))
	})
}

func TestHandleUpdate_Payments(t *testing.T) {
	ctx := context.Background()

	preCheckout := func() tgbotapi.Update {
		return tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
			ID: "pcq-1", From: &tgbotapi.User{ID: 42}, Currency: "XTR", TotalAmount: 50, InvoicePayload: "stars:pay_42_01H:n",
		}}
	}

	t.Run("should approve a valid pre-checkout", func(t *testing.T) {
		f := newBotFixture(t, nil)

		require.NoError(t, f.bot.HandleUpdate(ctx, preCheckout()))

		answer, ok := f.api.requests[0].(tgbotapi.PreCheckoutConfig)
		require.True(t, ok)
		assert.True(t, answer.OK)
		assert.Equal(t, "pcq-1", answer.PreCheckoutQueryID)
	})

	t.Run("should reject a stale or mismatched pre-checkout", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.ValidatePreCheckoutErr = domain.ErrPaymentMismatch

		require.NoError(t, f.bot.HandleUpdate(ctx, preCheckout()))

		answer := f.api.requests[0].(tgbotapi.PreCheckoutConfig)
		assert.False(t, answer.OK)
		assert.NotEmpty(t, answer.ErrorMessage)
	})

	successful := func() tgbotapi.Update {
		return tgbotapi.Update{Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 42},
			Chat: &tgbotapi.Chat{ID: 42},
			SuccessfulPayment: &tgbotapi.SuccessfulPayment{
				Currency: "XTR", TotalAmount: 50, InvoicePayload: "stars:pay_42_01H:n", TelegramPaymentChargeID: "ch_1",
			},
		}}
	}

	t.Run("should confirm a Stars receipt and grant access", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.ConfirmPaymentFunc = func(_ context.Context, c usecase.Confirmation) (*model.SubscriptionResult, error) {
			stars, ok := c.(usecase.StarsConfirmation)
			require.True(t, ok)
			assert.Equal(t, usecase.StarsConfirmation{Payload: "stars:pay_42_01H:n", ChargeID: "ch_1", TelegramID: 42, Amount: 50, Currency: "XTR"}, stars)
			return &model.SubscriptionResult{TelegramID: 42, TransactionID: "ch_1"}, nil
		}

		require.NoError(t, f.bot.HandleUpdate(ctx, successful()))

		require.Len(t, f.subs.Granted, 1)
		assert.Equal(t, "ch_1", f.subs.Granted[0].TransactionID)
	})

	t.Run("should not grant twice for a duplicate receipt", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.ConfirmPaymentFunc = func(context.Context, usecase.Confirmation) (*model.SubscriptionResult, error) {
			return &model.SubscriptionResult{TelegramID: 42, Duplicate: true}, nil
		}

		require.NoError(t, f.bot.HandleUpdate(ctx, successful()))

		assert.Empty(t, f.subs.Granted)
	})

	t.Run("should tell the user when activation failed", func(t *testing.T) {
		f := newBotFixture(t, nil)
		f.pay.ConfirmPaymentFunc = func(context.Context, usecase.Confirmation) (*model.SubscriptionResult, error) {
			return nil, domain.ErrStoreWriteFailed
		}

		require.NoError(t, f.bot.HandleUpdate(ctx, successful()))

		assert.Equal(t, f.bot.tr.T("payment_processing_error"), f.api.lastMessage(t).Text)
	})
}
