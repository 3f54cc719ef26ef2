package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alitto/pond/v2"
	"github.com/shopspring/decimal"

	"CollectiveLedger/internal/clock"
	"CollectiveLedger/internal/config"
	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/events"
	"CollectiveLedger/internal/httpapi"
	"CollectiveLedger/internal/infrastructure/attestation"
	"CollectiveLedger/internal/infrastructure/identity"
	"CollectiveLedger/internal/infrastructure/payment"
	"CollectiveLedger/internal/infrastructure/postref"
	"CollectiveLedger/internal/infrastructure/scheduler"
	"CollectiveLedger/internal/infrastructure/storage"
	"CollectiveLedger/internal/infrastructure/telegram"
	"CollectiveLedger/internal/logging"
	"CollectiveLedger/internal/observability"
	"CollectiveLedger/internal/ports"
	"CollectiveLedger/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	store         storage.Store
	pool          pond.Pool
	contributions *usecase.ContributionService
	payouts       *usecase.PayoutService
	scheduler     *usecase.Scheduler
	server        *http.Server
}

// New builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := storage.Open(ctx, storage.Options{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Path:   cfg.Storage.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	roster, err := identity.NewRoster(cfg.Roster)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load roster: %w", err)
	}

	payments, err := newPaymentRouter(cfg.Payments)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var (
		sysClock = clock.System{}
		bus      = events.NewBus()
		metrics  = observability.Ledger()
		pool     = pond.NewPool(cfg.Attestation.Workers, pond.WithQueueSize(cfg.Attestation.QueueSize))
	)

	contributions := usecase.NewContributionService(usecase.ContributionDeps{
		Repository: store,
		Gateway:    newGateway(cfg.Attestation),
		Resolver:   postref.NewResolver(nil),
		Bus:        bus,
		Clock:      sysClock,
		Pool:       pool,
		Backoff:    cfg.Attestation.Retry,
		Metrics:    metrics,
		Logger:     baseLogger.With("component", "contributions"),
		Attester:   cfg.Attestation.Attester,
	})

	payouts := usecase.NewPayoutService(usecase.PayoutDeps{
		Payouts:       store,
		Contributions: store,
		Payments:      payments,
		Authorizer:    payments,
		Bus:           bus,
		Clock:         sysClock,
		Metrics:       metrics,
		Logger:        baseLogger.With("component", "payouts"),
		WeeklyAmount:  decimal.RequireFromString(cfg.Payout.WeeklyAmount),
	})

	metricsSvc := usecase.NewMetricsService(store, store, sysClock, usecase.Rates{
		USDPerUnit:      decimal.RequireFromString(cfg.Metrics.USDRate),
		WeeklyTargetUSD: decimal.RequireFromString(cfg.Metrics.WeeklyTargetUSD),
	}, metrics)
	researchers := usecase.NewResearcherService(roster, store, store, bus, sysClock, cfg.Metrics.ProfileTTL)

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Configured() {
		notifier = tg
	}
	reports := usecase.NewReportService(metricsSvc, notifier, baseLogger.With("component", "report"))

	var driver ports.Scheduler
	if cfg.Scheduler.Enabled {
		driver = scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), baseLogger.With("component", "scheduler"))
	}

	api := httpapi.New(httpapi.Config{
		Contributions: contributions,
		Payouts:       payouts,
		Metrics:       metricsSvc,
		Researchers:   researchers,
		Reports:       reports,
		Identities:    roster,
		DefaultChain:  domain.Chain(cfg.Payout.DefaultChain),
		Logger:        baseLogger.With("component", "http"),
	})

	return &Application{
		cfg:           cfg,
		logger:        baseLogger,
		store:         store,
		pool:          pool,
		contributions: contributions,
		payouts:       payouts,
		scheduler:     usecase.NewScheduler(driver, reports, baseLogger.With("component", "scheduler")),
		server: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      api.Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

// Run serves the API and the weekly schedule until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if err := a.payouts.Reconcile(ctx); err != nil {
		a.logger.Warn("payout reconciliation incomplete", "error", err)
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop", "error", err)
	}
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (a *Application) close() {
	a.pool.StopAndWait()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close storage", "error", err)
	}
}

func newGateway(cfg config.AttestationConfig) ports.AttestationGateway {
	if cfg.Mode == "eas" {
		chain, _ := domain.ParseChain(cfg.Chain)
		return attestation.NewEASClient(attestation.Options{
			RelayerURL: cfg.RelayerURL,
			GraphQLURL: cfg.GraphQLURL,
			APIKey:     cfg.APIKey,
			SchemaUID:  cfg.SchemaUID,
			Chain:      chain,
		})
	}
	return attestation.NewLocalGateway()
}

func newPaymentRouter(cfg config.PaymentsConfig) (*payment.Router, error) {
	router := payment.NewRouter()
	var svc ports.PaymentService
	switch cfg.Mode {
	case "relayer":
		svc = payment.NewRelayer(cfg.RelayerURL, cfg.APIKey, cfg.Timeout)
	default:
		svc = payment.NewSimulated()
	}
	for _, raw := range cfg.Chains {
		chain, err := domain.ParseChain(raw)
		if err != nil {
			return nil, fmt.Errorf("payments.chains: %w", err)
		}
		router.Register(chain, svc)
	}
	return router, nil
}
