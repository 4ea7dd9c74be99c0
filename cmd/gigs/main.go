package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	gigs "github.com/set-night/gigs"
	"github.com/set-night/gigs/internal/api"
	"github.com/set-night/gigs/internal/config"
	"github.com/set-night/gigs/internal/domain"
	"github.com/set-night/gigs/internal/handler"
	"github.com/set-night/gigs/internal/middleware"
	"github.com/set-night/gigs/internal/repository"
	"github.com/set-night/gigs/internal/service"
	"github.com/set-night/gigs/internal/telegram"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(gigs.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Stores
	userStore := repository.NewUserStore(pool)
	taskStore := repository.NewTaskStore(pool)
	offerStore := repository.NewOfferStore(pool)
	appStore := repository.NewApplicationStore(pool)
	paymentStore := repository.NewPaymentStore(pool)
	sagaStore := repository.NewSagaStore(pool)
	rateLimits := repository.NewRateLimitStore(pool)

	userService := service.NewUserService(userStore, cfg.StartingBalance())

	// Set once the bot exists; middleware closures read it lazily
	var opsLogger *telegram.OpsLogger

	// Create bot
	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.Recover(func(err error, where string) {
				if opsLogger != nil {
					opsLogger.LogError(err, where)
				}
			}),
			middleware.Logging(),
			middleware.RateLimit(rateLimits),
			middleware.UserLoader(userService, cfg, func(u *domain.User) {
				slog.Info("user registered", "user_id", u.ID, "telegram_id", u.TelegramID)
			}),
		),
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if update.Message != nil && update.Message.Chat.Type == models.ChatTypePrivate {
				telegram.SendText(ctx, b, update.Message.Chat.ID, "Unknown command. Send /help for the list.")
			}
		}),
	}

	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Get bot info
	me, err := b.GetMe(ctx)
	if err != nil {
		slog.Error("failed to get bot info", "error", err)
		os.Exit(1)
	}

	slog.Info("bot info retrieved", "id", me.ID, "username", me.Username)

	if cfg.DropPendingUpdates {
		if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			slog.Warn("failed to drop pending updates", "error", err)
		}
	}

	opsLogger = telegram.NewOpsLogger(b, cfg)
	notifier := telegram.NewNotifier(b, userStore)

	// Saga log and services
	sagas := service.NewSagaLog(sagaStore, cfg.SagaMaxAttempts, cfg.SagaStaleAfter)
	sagas.OnAbandon(opsLogger.LogSagaAbandoned)

	paymentService := service.NewPaymentService(paymentStore, service.NewParticipantCheck(taskStore), cfg.RemoteCallTimeout)
	paymentService.SetObserver(opsLogger.LogEscrow)

	taskService := service.NewTaskService(taskStore, userStore, paymentService, offerStore, appStore, notifier, sagas, cfg.RemoteCallTimeout)
	offerService := service.NewOfferService(offerStore, taskService, userStore, notifier, sagas, cfg.RemoteCallTimeout)
	staffingService := service.NewStaffingService(appStore, taskService, userStore, paymentService, notifier, sagas, cfg.RemoteCallTimeout)

	// Initialize handler
	h := handler.New(handler.Deps{
		Bot:             b,
		Cfg:             cfg,
		UserService:     userService,
		TaskService:     taskService,
		OfferService:    offerService,
		StaffingService: staffingService,
		PaymentService:  paymentService,
		Sagas:           sagas,
		OpsLogger:       opsLogger,
		BotUsername:     me.Username,
	})

	// Register all handlers
	h.Register()

	g, ctx := errgroup.WithContext(ctx)

	// Ops HTTP server
	opsServer := api.NewServer(pool, sagas, paymentService, cfg)
	g.Go(func() error {
		return opsServer.ListenAndServe(ctx, cfg.Port)
	})

	// Saga replay, orphan holds and rate limit cleanup
	g.Go(func() error {
		recoverStuckWork(ctx, sagas, paymentService, cfg.OrphanHoldAge)

		ticker := time.NewTicker(cfg.SagaReplayInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				recoverStuckWork(ctx, sagas, paymentService, cfg.OrphanHoldAge)
				if _, err := rateLimits.CleanupOld(ctx); err != nil {
					slog.Error("cleanup rate limits", "error", err)
				}
			}
		}
	})

	// Start bot
	g.Go(func() error {
		slog.Info("starting bot", "username", me.Username, "id", me.ID)
		b.Start(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("shutdown with error", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	slog.Info("bot stopped gracefully")
}

func recoverStuckWork(ctx context.Context, sagas *service.SagaLog, payments *service.PaymentService, orphanAge time.Duration) {
	if n, err := sagas.Replay(ctx); err != nil {
		slog.Error("saga replay", "error", err)
	} else if n > 0 {
		slog.Info("saga replay", "resolved", n)
	}

	if n, err := payments.SweepOrphanHolds(ctx, orphanAge); err != nil {
		slog.Error("sweep orphan holds", "error", err)
	} else if n > 0 {
		slog.Info("orphan holds refunded", "count", n)
	}
}
