package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-engine/internal/api/http"
	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/persistence"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/service"
	"github.com/spec-kit/sla-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	systemClock := clock.System()
	var calendar *clock.BusinessCalendar
	if cfg.BusinessHours.Enabled {
		calendar, err = clock.NewBusinessCalendar(
			cfg.BusinessHours.Timezone,
			cfg.BusinessHours.WorkdayStart,
			cfg.BusinessHours.WorkdayEnd,
			cfg.BusinessHours.WorkingDays,
		)
		if err != nil {
			logger.Fatal("invalid business hours configuration", zap.Error(err))
		}
	}
	provider := clock.NewProvider(systemClock, calendar, logger)

	pool := pg.PoolHandle()
	policyRepo := repository.NewPolicyRepository(pool)
	timerRepo := repository.NewTimerRepository(pool)
	breachRepo := repository.NewBreachRepository(pool)
	ruleRepo := repository.NewRuleRepository(pool)

	cache := service.NewRedisCache(redis.Client)

	policyService := service.NewPolicyService(service.PolicyDependencies{
		PolicyRepo: policyRepo,
		Cache:      cache,
		CacheTTL:   cfg.SLA.CacheTTL(),
		Logger:     logger,
	})

	dispatcher := events.NewInMemoryDispatcher()

	detector := service.NewBreachDetector(timerRepo, breachRepo, metrics, logger)
	engine := service.NewTimerEngine(service.TimerEngineDependencies{
		TimerRepo:      timerRepo,
		Detector:       detector,
		Provider:       provider,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
		AtRiskFraction: cfg.SLA.AtRiskFraction(),
	})

	lifecycleService := service.NewLifecycleService(policyService, engine, logger)

	workflowService := service.NewWorkflowService(service.WorkflowDependencies{
		RuleRepo: ruleRepo,
		Executor: service.NewTicketSystemClient(logger, cfg.Notification),
		Cache:    cache,
		CacheTTL: cfg.SLA.CacheTTL(),
		Metrics:  metrics,
		Logger:   logger,
	})

	// Registration order matters: timers must be updated before workflow
	// rules observe the same event.
	lifecycleService.RegisterHandlers(dispatcher)
	workflowService.RegisterHandlers(dispatcher)

	reportService := service.NewReportService(service.ReportDependencies{
		TimerRepo:  timerRepo,
		BreachRepo: breachRepo,
		Policies:   policyService,
		Workflows:  workflowService,
	})

	authService := service.NewAuthService(cfg.Auth)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager())

	sweeper, err := worker.NewSweepWorker(engine, cfg.SLA.SweepInterval(), logger)
	if err != nil {
		logger.Fatal("failed to init sweep worker", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Events:         handlers.NewEventsHandler(dispatcher, systemClock),
		Policies:       handlers.NewPoliciesHandler(policyService),
		Workflows:      handlers.NewWorkflowsHandler(workflowService, systemClock),
		Timers:         handlers.NewTimersHandler(engine, systemClock),
		Reports:        handlers.NewReportsHandler(reportService, systemClock),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	logger.Info("sla engine started",
		zap.String("addr", cfg.App.Addr()),
		zap.String("env", cfg.App.Env),
		zap.Duration("sweep_interval", cfg.SLA.SweepInterval()))

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
