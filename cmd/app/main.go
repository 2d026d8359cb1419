// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/config"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/adapter"
	"telegram-group-subscription/internal/domain/ports/repository"
	payAdapters "telegram-group-subscription/internal/infra/adapters/payment"
	tele "telegram-group-subscription/internal/infra/adapters/telegram"
	"telegram-group-subscription/internal/infra/api"
	pg "telegram-group-subscription/internal/infra/db/postgres"
	"telegram-group-subscription/internal/infra/i18n"
	"telegram-group-subscription/internal/infra/logging"
	"telegram-group-subscription/internal/infra/memory"
	"telegram-group-subscription/internal/infra/metrics"
	red "telegram-group-subscription/internal/infra/redis"
	"telegram-group-subscription/internal/infra/sched"
	"telegram-group-subscription/internal/infra/scheduler"
	"telegram-group-subscription/internal/infra/web"
	"telegram-group-subscription/internal/infra/worker"
	"telegram-group-subscription/internal/usecase"
)

// botAdapter is what the rest of the process needs from Telegram,
// whether a real bot or the logging stand-in.
type botAdapter interface {
	adapter.TelegramBotAdapter
	adapter.GroupManager
	adapter.Notifier
	adapter.StarsRefunder
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop gateway fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrations")
	}

	checks := map[string]api.Check{
		"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
	}
	infos := map[string]string{}

	// ---- Redis (optional) ----
	var (
		sessions    repository.SessionStore
		events      repository.ProcessedEventStore
		locker      repository.Locker
		rateLimiter tele.RateLimiter
		userRepo    repository.UserRepository = pg.NewPostgresUserRepo(pool)
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		sessions = red.NewSessionStore(redisClient, cfg.Payment.SessionTTL)
		events = red.NewEventSet(redisClient, 0)
		locker = red.NewLocker(redisClient)
		rateLimiter = red.NewRateLimiter(redisClient)
		userRepo = pg.NewUserRepoCacheDecorator(userRepo, redisClient, cfg.Redis.TTL, logger)
		checks["redis"] = redisClient.Ping
	} else {
		logger.Info().Msg("redis.url not set; sessions and webhook de-duplication are kept in memory")
		sessions = memory.NewSessionStore()
		events = memory.NewEventSet(cfg.Payment.WebhookDedupCapacity)
		locker = memory.NewLocker()
		infos["redis"] = "disabled"
	}

	activityRepo := pg.NewPostgresActivityLogRepo(pool)
	txManager := pg.NewTxManager(pool)

	plans, err := model.NewPlanCatalog(cfg.Plans)
	if err != nil {
		logger.Fatal().Err(err).Msg("plans")
	}

	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}

	// ---- Telegram ----
	var (
		bot    botAdapter
		client *tele.Client
	)
	if cfg.Bot.Disabled {
		logger.Warn().Msg("bot.disabled is set; Telegram output is only logged")
		bot = tele.NewNoopBotAdapter(logger)
		infos["telegram"] = "disabled"
	} else {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		logger.Info().Str("bot", botAPI.Self.UserName).Msg("authorized on Telegram")
		client = tele.NewClient(botAPI, cfg.Bot.GroupID, tr, logger)
		bot = client
	}

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	airwallex := payAdapters.NewAirwallexGateway(cfg.Payment.Gateway, logger)
	switch {
	case airwallex.Configured():
		gateway = airwallex
		checks["airwallex"] = airwallex.Authenticate
	case cfg.Runtime.Dev:
		logger.Warn().Msg("Airwallex is not configured; using the noop gateway")
		gateway = payAdapters.NewNoopPaymentGateway()
		infos["airwallex"] = "noop"
	default:
		logger.Warn().Msg("Airwallex is not configured; card payments are unavailable")
		infos["airwallex"] = "disabled"
	}

	// ---- Use cases ----
	subUC := usecase.NewSubscriptionUseCase(userRepo, activityRepo, txManager, bot, bot, logger)
	payUC := usecase.NewPaymentUseCase(sessions, locker, gateway, bot, subUC, plans, usecase.PaymentOptions{
		Currency:          cfg.Payment.Currency,
		StarsToUSD:        cfg.Payment.StarsToUSD,
		SessionTTL:        cfg.Payment.SessionTTL,
		LinkTTL:           cfg.Payment.LinkTTL,
		PreCheckoutMaxAge: cfg.Payment.PreCheckoutMaxAge,
	}, logger)
	webhookUC := usecase.NewWebhookUseCase(payUC, subUC, bot, logger)
	statsUC := usecase.NewStatsUseCase(subUC, sessions, logger)

	workerPool := worker.NewPool(cfg.Payment.WebhookWorkers, logger)
	workerPool.Start(ctx)
	broadcastUC := usecase.NewBroadcastUseCase(userRepo, bot, workerPool, logger)

	// ---- Schedulers ----
	daily, err := scheduler.NewScheduler(cfg.Scheduler, subUC, statsUC, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler")
	}
	daily.Start(ctx)
	sweeper := sched.NewSessionSweeper(payUC, cfg.Scheduler.SweepInterval, logger)
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("session sweeper stopped")
		}
	}()

	// ---- HTTP ----
	health := api.NewHealthHandler(sessions, events, workerPool, logger)
	for name, c := range checks {
		health.AddCheck(name, c)
	}
	for name, state := range infos {
		health.AddInfo(name, state)
	}

	verifier := payAdapters.NewSignatureVerifier(cfg.Payment.Gateway.WebhookSecret, cfg.Payment.SignatureTolerance, logger)
	webhook := api.NewWebhookHandler(verifier, events, locker, webhookUC, workerPool, cfg.HTTP.RequestTimeout, logger)

	// An unconfigured admin API answers 403 rather than disappearing.
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.APIKey, !cfg.Runtime.Dev, cfg.Admin.TokenTTL)
	if !auth.Enabled() {
		logger.Info().Msg("admin credentials not set; admin API is locked")
	}
	admin := web.NewServer(statsUC, subUC, payUC, broadcastUC, daily, auth, logger).Routes()

	srv := api.NewServer(cfg.HTTP, webhook, health, admin, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// ---- Bot polling ----
	var botAdp *tele.RealTelegramBotAdapter
	if client != nil {
		webhookURL := ""
		if cfg.HTTP.PublicURL != "" {
			webhookURL = strings.TrimRight(cfg.HTTP.PublicURL, "/") + api.WebhookPath
		}
		botAdp, err = tele.NewRealTelegramBotAdapter(client, payUC, subUC, rateLimiter, webhookURL, cfg.Bot.Workers, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram adapter")
		}
		go func() {
			if err := botAdp.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	logger.Info().Int("port", cfg.HTTP.Port).Int("plans", len(plans.List())).Msg("subscription bot running")
	waitForShutdown(logger)

	// ---- Graceful shutdown ----
	if botAdp != nil {
		botAdp.StopPolling()
	}
	daily.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	workerPool.Stop()
	logger.Info().Msg("shutdown complete")
}

func waitForShutdown(logger *zerolog.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info().Str("signal", s.String()).Msg("shutting down")
}
