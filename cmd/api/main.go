package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sewasetu/sewasetu-backend/api/routes"
	"github.com/sewasetu/sewasetu-backend/internal/auth"
	"github.com/sewasetu/sewasetu-backend/internal/orderfeed"
	"github.com/sewasetu/sewasetu-backend/internal/orders"
	"github.com/sewasetu/sewasetu-backend/internal/partners"
	"github.com/sewasetu/sewasetu-backend/internal/wallet"
	razorpaywebhook "github.com/sewasetu/sewasetu-backend/internal/webhooks/razorpay"
	"github.com/sewasetu/sewasetu-backend/pkg/alerts"
	"github.com/sewasetu/sewasetu-backend/pkg/auth/session"
	"github.com/sewasetu/sewasetu-backend/pkg/config"
	"github.com/sewasetu/sewasetu-backend/pkg/db"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
	"github.com/sewasetu/sewasetu-backend/pkg/metrics"
	"github.com/sewasetu/sewasetu-backend/pkg/migrate"
	"github.com/sewasetu/sewasetu-backend/pkg/pubsub"
	"github.com/sewasetu/sewasetu-backend/pkg/razorpay"
	"github.com/sewasetu/sewasetu-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	walletMetrics := metrics.NewWalletMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)

	var notifier alerts.Notifier = alerts.NewLogNotifier(logg)
	if cfg.Alerts.Enabled {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.Alerts, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		notifier, err = alerts.NewPubSubNotifier(pubsubClient.AlertsPublisher(), logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create alerts notifier", err)
			os.Exit(1)
		}
	}

	razorpayClient, err := razorpay.NewClient(context.Background(), cfg.Razorpay, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create razorpay client", err)
		os.Exit(1)
	}

	partnersRepo := partners.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	walletRepo := wallet.NewRepository(dbClient.DB())
	topupRepo := wallet.NewTopupRepository(dbClient.DB())
	adminsRepo := auth.NewAdminRepository(dbClient.DB())

	balanceAccessor, err := wallet.NewBalanceAccessor(dbClient.DB(), cfg.Wallet, walletMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create balance accessor", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Partners:       partnersRepo,
		Admins:         adminsRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	walletService, err := wallet.NewService(wallet.ServiceParams{
		Repo:     walletRepo,
		Topups:   topupRepo,
		Partners: partnersRepo,
		Balance:  balanceAccessor,
		Gateway:  razorpayClient,
		Notifier: notifier,
		Metrics:  walletMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Partners: partnersRepo,
		Wallet:   walletRepo,
		Balance:  balanceAccessor,
		Notifier: notifier,
		Metrics:  walletMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	webhookService, err := razorpaywebhook.NewService(razorpaywebhook.ServiceParams{
		Wallet: walletService,
		Topups: topupRepo,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := razorpaywebhook.NewIdempotencyGuard(redisClient, cfg.Wallet.WebhookDedupeTTL, "razorpay")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	feed, err := orderfeed.NewFeed(orderfeed.FeedParams{
		Orders:  ordersRepo,
		Logger:  logg,
		Metrics: cronMetrics,
		Config:  cfg.OrderFeed,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order feed", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := feed.Start(ctx); err != nil {
		logg.Error(ctx, "failed to start order feed", err)
		os.Exit(1)
	}
	defer feed.Stop()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	startCtx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(startCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			SessionManager: sessionManager,
			AuthService:    authService,
			WalletService:  walletService,
			OrdersService:  ordersService,
			OrdersRepo:     ordersRepo,
			PartnersRepo:   partnersRepo,
			OrderFeed:      feed,
			RazorpayClient: razorpayClient,
			WebhookService: webhookService,
			WebhookGuard:   webhookGuard,
			MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(startCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(startCtx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(startCtx, "graceful shutdown failed", err)
		}
	}
}
