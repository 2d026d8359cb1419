package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/infra/i18n"
	"telegram-group-subscription/internal/infra/logging"
	red "telegram-group-subscription/internal/infra/redis"
	"telegram-group-subscription/internal/usecase"
)

// RateLimiter is satisfied by red.RateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

const (
	commandLimit  = 20
	callbackLimit = 30
	limitWindow   = time.Minute
)

// RealTelegramBotAdapter polls updates and routes commands, callbacks and
// payment updates to the use cases.
type RealTelegramBotAdapter struct {
	client      *Client
	payUC       usecase.PaymentUseCase
	subUC       usecase.SubscriptionUseCase
	rateLimiter RateLimiter
	tr          *i18n.Translator
	log         *zerolog.Logger

	// webhookURL is handed to the gateway for card links.
	webhookURL    string
	updateWorkers int

	mu            sync.Mutex
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(
	client *Client,
	payUC usecase.PaymentUseCase,
	subUC usecase.SubscriptionUseCase,
	rateLimiter RateLimiter,
	webhookURL string,
	updateWorkers int,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if client == nil || payUC == nil || subUC == nil {
		return nil, errors.New("telegram adapter: client and use cases are required")
	}
	if updateWorkers <= 0 {
		updateWorkers = 5
	}
	l := logger.With().Str("component", "telegram_bot").Logger()
	return &RealTelegramBotAdapter{
		client:        client,
		payUC:         payUC,
		subUC:         subUC,
		rateLimiter:   rateLimiter,
		tr:            client.tr,
		log:           &l,
		webhookURL:    webhookURL,
		updateWorkers: updateWorkers,
	}, nil
}

// StartPolling blocks until ctx is cancelled or StopPolling is called.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if err := r.client.setCommands(); err != nil {
		r.log.Warn().Err(err).Msg("failed to set bot commands")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query", "pre_checkout_query"}
	updates := r.client.api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancelPolling = cancel
	r.mu.Unlock()
	defer r.client.api.StopReceivingUpdates()

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for update := range updateChan {
				r.safeHandle(ctx, workerID, update)
			}
		}(i + 1)
	}

	r.log.Info().Int("workers", r.updateWorkers).Msg("Telegram polling started")
	for {
		select {
		case <-ctx.Done():
			close(updateChan)
			wg.Wait()
			r.log.Info().Msg("Telegram polling stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				close(updateChan)
				wg.Wait()
				return nil
			}
			select {
			case updateChan <- update:
			case <-ctx.Done():
			}
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealTelegramBotAdapter) safeHandle(ctx context.Context, workerID int, update tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Int("worker", workerID).Interface("panic", rec).Int("update_id", update.UpdateID).Msg("update handler panicked")
		}
	}()
	if err := r.HandleUpdate(ctx, update); err != nil {
		r.log.Warn().Err(err).Int("worker", workerID).Int("update_id", update.UpdateID).Msg("update handling failed")
	}
}

// HandleUpdate routes one update. Exposed for tests.
func (r *RealTelegramBotAdapter) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.PreCheckoutQuery != nil:
		return r.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.CallbackQuery != nil:
		return r.handleQuery(ctx, update.CallbackQuery)
	case update.Message == nil || update.Message.From == nil:
		return nil
	case update.Message.SuccessfulPayment != nil:
		return r.handleSuccessfulPayment(ctx, update.Message)
	case !update.Message.IsCommand():
		return nil
	}

	msg := update.Message
	ctx = logging.WithTgID(ctx, msg.From.ID)
	command := msg.Command()
	if !r.allow(ctx, msg.From.ID, "/"+command, commandLimit) {
		return r.client.SendMessage(ctx, msg.Chat.ID, r.tr.T("rate_limited"))
	}
	handler, ok := r.commandRoutes()[command]
	if !ok {
		return r.client.SendMessage(ctx, msg.Chat.ID, r.tr.T("help_message"))
	}
	return handler(ctx, msg)
}

func (r *RealTelegramBotAdapter) allow(ctx context.Context, tgID int64, key string, limit int) bool {
	if r.rateLimiter == nil {
		return true
	}
	ok, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(tgID, key), limit, limitWindow)
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("rate limiter unavailable; allowing")
		return true
	}
	return ok
}
