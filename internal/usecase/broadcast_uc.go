package usecase

import (
	"context"
	"time"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/adapter"
	"telegram-group-subscription/internal/domain/ports/repository"
	"telegram-group-subscription/internal/infra/worker"

	"github.com/rs/zerolog"
)

type BroadcastUseCase interface {
	// BroadcastMessage queues the text for every subscriber with access and
	// returns the recipient count. Delivery continues in the background.
	BroadcastMessage(ctx context.Context, message string) (int, error)
}

type broadcastUC struct {
	users      repository.UserRepository
	bot        adapter.TelegramBotAdapter
	workerPool *worker.Pool
	log        *zerolog.Logger
	rate       time.Duration
}

func NewBroadcastUseCase(
	users repository.UserRepository,
	bot adapter.TelegramBotAdapter,
	pool *worker.Pool,
	logger *zerolog.Logger,
) BroadcastUseCase {
	l := logger.With().Str("component", "broadcast_uc").Logger()
	return &broadcastUC{
		users:      users,
		bot:        bot,
		workerPool: pool,
		log:        &l,
		// Telegram allows about 30 messages per second
		rate: time.Second / 25,
	}
}

func (uc *broadcastUC) recipients(ctx context.Context) ([]int64, error) {
	today := model.DateOf(time.Now())
	active, err := uc.users.ListByStatus(ctx, repository.NoTX, model.SubscriptionActive)
	if err != nil {
		return nil, err
	}
	white, err := uc.users.ListByStatus(ctx, repository.NoTX, model.SubscriptionWhitelisted)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(active)+len(white))
	for _, u := range append(active, white...) {
		if u.IsActive(today) {
			ids = append(ids, u.TelegramID)
		}
	}
	return ids, nil
}

func (uc *broadcastUC) BroadcastMessage(ctx context.Context, message string) (int, error) {
	if message == "" {
		return 0, domain.ErrInvalidArgument
	}
	ids, err := uc.recipients(ctx)
	if err != nil {
		uc.log.Error().Err(err).Msg("Failed to fetch recipients for broadcast")
		return 0, err
	}

	throttle := time.NewTicker(uc.rate)
	go func() {
		defer throttle.Stop()
		uc.log.Info().Int("user_count", len(ids)).Msg("Starting broadcast job")

		for _, id := range ids {
			<-throttle.C
			if err := uc.workerPool.Submit(uc.createSendTask(id, message)); err != nil {
				uc.log.Warn().Err(err).Int64("tg_id", id).Msg("Failed to submit broadcast task to worker pool")
			}
		}
		uc.log.Info().Msg("Broadcast job finished queuing all tasks")
	}()

	return len(ids), nil
}

// createSendTask creates a closure for the worker pool to execute.
func (uc *broadcastUC) createSendTask(telegramID int64, message string) worker.Task {
	return func(ctx context.Context) error {
		if err := uc.bot.SendMessage(ctx, telegramID, message); err != nil {
			uc.log.Warn().Err(err).Int64("tg_id", telegramID).Msg("Broadcast delivery failed")
			return err
		}
		return nil
	}
}
