// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agency-checkout/internal/config"
	"agency-checkout/internal/domain/ports/adapter"
	"agency-checkout/internal/domain/ports/repository"
	"agency-checkout/internal/infra/adapters/events"
	payAdapters "agency-checkout/internal/infra/adapters/payment"
	tele "agency-checkout/internal/infra/adapters/telegram"
	"agency-checkout/internal/infra/api"
	pg "agency-checkout/internal/infra/db/postgres"
	"agency-checkout/internal/infra/i18n"
	"agency-checkout/internal/infra/logging"
	"agency-checkout/internal/infra/metrics"
	red "agency-checkout/internal/infra/redis"
	"agency-checkout/internal/infra/sched"
	"agency-checkout/internal/infra/scheduler"
	"agency-checkout/internal/infra/worker"
	"agency-checkout/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted contacts)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go reportPoolStats(ctx, pool)

	planStore := pg.NewPostgresPlanRepo(pool)
	var planRepo repository.PlanRepository = planStore
	purchaseRepo := pg.NewPostgresPurchaseRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Redis (optional) ----
	var (
		redisClient *red.Client
		purchaseBus adapter.PurchaseEvents
		limiter     api.Limiter
		locker      red.Locker
	)
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		planRepo = pg.NewPlanRepoCacheDecorator(planRepo, redisClient, cfg.Redis.TTL, logger)
		purchaseBus = red.NewPurchaseEvents(redisClient, logger)
		limiter = red.NewRateLimiter(redisClient)
		locker = red.NewLocker(redisClient)
	} else {
		logger.Info().Msg("redis disabled: in-process events, no plan cache, no rate limit")
		purchaseBus = events.NewMemoryEvents()
	}

	// ---- Payment gateway ----
	var (
		gateway   adapter.PaymentGateway
		configErr error
	)
	switch cfg.Payment.Gateway {
	case "noop":
		logger.Warn().Msg("payment.gateway=noop: links are fake, use only for local runs")
		gateway = payAdapters.NewNoopPaymentGateway()
	default:
		pp, err := payAdapters.NewPayPhoneGateway(cfg.Payment.PayPhone)
		if err != nil {
			configErr = err
			logger.Error().Err(err).Msg("payphone gateway disabled; checkout will answer 503")
		} else {
			gateway = pp
		}
	}

	// ---- Owner notifications ----
	var notifier adapter.PurchaseNotifier = tele.NewNoopNotifier(logger)
	if cfg.Notify.Telegram.Token != "" {
		tn, err := tele.NewTelegramNotifier(cfg.Notify.Telegram, logger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifier disabled")
		} else {
			notifier = tn
		}
	}
	tasks := worker.NewPool(cfg.Notify.Workers, logger)
	tasks.Start(ctx)
	defer tasks.Stop()

	// ---- Use cases ----
	planUC := usecase.NewPlanUseCase(planRepo, logger)
	checkoutUC := usecase.NewCheckoutUseCase(purchaseRepo, logger, cfg.Runtime.Dev)
	// the price re-check reads the store directly; plans can be edited outside this service
	paymentUC := usecase.NewPaymentUseCase(purchaseRepo, planStore, gateway, usecase.PaymentSettings{
		Currency:   cfg.Payment.PayPhone.Currency,
		TaxRate:    cfg.Payment.PayPhone.TaxRate,
		SuccessURL: cfg.Payment.PayPhone.SuccessURL(),
		CancelURL:  cfg.Payment.PayPhone.CancelURL(),
		ConfigErr:  configErr,
	}, logger)
	reconcileUC := usecase.NewReconcileUseCase(purchaseRepo, txManager, purchaseBus, notifier, tasks, logger).
		WithCurrency(cfg.Payment.PayPhone.Currency)
	if locker != nil {
		reconcileUC.WithLocker(locker, cfg.Checkout.ReconcileLockTTL)
	}
	adminUC := usecase.NewAdminPurchaseUseCase(purchaseRepo, purchaseBus, logger)
	flow := usecase.NewCheckoutFlow(checkoutUC, paymentUC, purchaseBus)

	// ---- Abandonment sweeper (off unless checkout.abandon_after > 0) ----
	sweeper := sched.NewAbandonSweeper(adminUC, cfg.Checkout.AbandonAfter, 0)
	if sweeper.Enabled() {
		s := scheduler.NewScheduler("abandon-sweeper", cfg.Scheduler.SweepInterval, sweeper, logger)
		s.Start(ctx)
		defer s.Stop()
	}

	// ---- HTTP ----
	pages, err := i18n.NewCatalog(i18n.LocalesFS, i18n.DefaultLang, "en")
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}
	srv := api.NewServer(api.Deps{
		Plans:     planUC,
		Checkout:  checkoutUC,
		Flow:      flow,
		Reconcile: reconcileUC,
		Admin:     adminUC,
		Auth:      api.NewAuthManager(cfg.Admin.APIKey, cfg.Admin.JWTSecret, cfg.Admin.SecureCookie, cfg.Admin.SessionTTL),
		Limiter:   limiter,
		Pages:     pages,
		Metrics:   promhttp.Handler(),
		Health: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
			if redisClient != nil {
				return redisClient.Ping(ctx)
			}
			return nil
		},
	}, api.Options{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		RateLimit:      cfg.Checkout.RateLimit,
		RateWindow:     cfg.Checkout.RateWindow,
		WaitTimeout:    cfg.Checkout.WaitTimeout,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Dev:            cfg.Runtime.Dev,
	}, logger)

	if err := srv.Serve(ctx, fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
		logger.Error().Err(err).Msg("http server stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := pool.Stat()
			metrics.SetDBPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns())
		}
	}
}
