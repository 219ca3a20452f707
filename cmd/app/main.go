package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"character-chat-billing/internal/config"
	"character-chat-billing/internal/domain/ports/repository"
	pg "character-chat-billing/internal/infra/db/postgres"
	"character-chat-billing/internal/infra/gateway"
	"character-chat-billing/internal/infra/logging"
	"character-chat-billing/internal/infra/metrics"
	red "character-chat-billing/internal/infra/redis"
	"character-chat-billing/internal/infra/retry"
	"character-chat-billing/internal/infra/sched"
	"character-chat-billing/internal/infra/web"
	"character-chat-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed validation)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, int32(cfg.Database.MaxConns))
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	txManager := pg.NewTxManager(pool)

	// ---- Redis (optional; caches and webhook throttling degrade away without it) ----
	var (
		redisClient red.RedisClient
		rateLimiter *red.RateLimiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		rateLimiter = red.NewRateLimiter(redisClient)
	} else {
		logger.Warn().Msg("redis.url not set; running without caches or webhook throttling")
	}

	// ---- Repositories ----
	var (
		planRepo   repository.PlanRepository   = pg.NewPlanRepo(pool)
		ledgerRepo repository.LedgerRepository = pg.NewLedgerRepo(pool)
	)
	paymentRepo := pg.NewPaymentRepo(pool)
	userRepo := pg.NewUserRepo(pool)
	if redisClient != nil {
		planRepo = pg.NewPlanRepoCacheDecorator(planRepo, redisClient)
		ledgerRepo = pg.NewLedgerRepoCacheDecorator(ledgerRepo, redisClient, cfg.Redis.TTL)
	}

	// ---- Gateway ----
	checkoutGateway := gateway.NewHostedCheckoutGateway(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey)
	policy := retry.Default()

	// ---- Use cases ----
	checkoutUC := usecase.NewCheckoutUseCase(planRepo, checkoutGateway, cfg.Gateway.SuccessURL, cfg.Gateway.CancelURL, logger)
	ledgerUC := usecase.NewLedgerUseCase(ledgerRepo, txManager, logger)
	reconcileUC := usecase.NewReconcileUseCase(paymentRepo, checkoutGateway, ledgerUC, policy, logger)
	verifyUC := usecase.NewVerifyUseCase(paymentRepo, userRepo, ledgerRepo, checkoutGateway, reconcileUC, ledgerUC, policy, cfg.Tokens.FallbackPerUnit, logger)
	grantUC := usecase.NewGrantUseCase(userRepo, ledgerUC, cfg.Tokens.MonthlyGrant, logger)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Web.AdminSecret, cfg.Web.AdminTTL)
	server := web.NewServer(web.ServerConfig{
		Addr:          fmt.Sprintf(":%d", cfg.Web.Port),
		WebhookSecret: cfg.Gateway.WebhookSecret,
		DeductCost:    cfg.Tokens.DeductCost,
	}, checkoutUC, reconcileUC, verifyUC, ledgerUC, grantUC, auth, rateLimiter, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Background workers ----
	resyncWorker := sched.NewResyncWorker(verifyUC, paymentRepo, cfg.Workers.ResyncInterval, cfg.Workers.ResyncAfter, logger)
	go func() { _ = resyncWorker.Run(ctx) }()
	grantWorker := sched.NewGrantWorker(grantUC, cfg.Workers.GrantInterval, logger)
	go func() { _ = grantWorker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
