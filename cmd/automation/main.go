package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/config"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/fulfillment/wing"
	automationHandler "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/handler/automation"
	healthHandler "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/handler/health"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/marketplace"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/matcher"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/middleware"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/model"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/repository/postgres"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/router"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/scheduler"
	automationService "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/service/automation"
	collectorService "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/service/collector"
	processorService "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/service/processor"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/logger"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	m := metrics.New("return_automation")

	// Repositories
	baseRepo := postgres.NewBaseRepository(db)
	recordRepo := postgres.NewReturnRecordRepository(baseRepo)
	configRepo := postgres.NewAutomationConfigRepository(baseRepo)
	logRepo := postgres.NewExecutionLogRepository(baseRepo)

	// External surfaces
	marketplaceClient := marketplace.NewClient(cfg.Marketplace, cfg.Credentials, appLogger, m)
	wingClient, err := wing.NewClient(cfg.Fulfillment, cfg.Credentials, rdb, appLogger, m)
	if err != nil {
		appLogger.Fatal(err, "failed to create fulfillment client")
	}

	// Pipeline services
	collector := collectorService.NewService(
		marketplaceClient, recordRepo, configRepo, logRepo, cfg.Marketplace, appLogger, m)
	searcher := matcher.NewSearcher(cfg.Fulfillment.MaxSearchPages, appLogger)
	processor := processorService.NewService(
		recordRepo, configRepo, logRepo, wingClient, searcher, cfg.Fulfillment, appLogger, m)

	sched := scheduler.New(
		configRepo,
		scheduler.RunnerFunc(func(ctx context.Context, trigger model.TriggerSource) error {
			_, err := collector.Run(ctx, trigger)
			return err
		}),
		scheduler.RunnerFunc(func(ctx context.Context, trigger model.TriggerSource) error {
			_, err := processor.Run(ctx, trigger)
			return err
		}),
		cfg.Scheduler.PollResolution,
		appLogger,
	)

	automationSvc := automationService.NewService(recordRepo, configRepo, logRepo, sched, appLogger, m)

	r := router.New(router.Config{
		JWTSecret:    cfg.Auth.JWTSecret,
		RateLimit:    middleware.RateLimiterConfig{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst},
		AllowOrigins: cfg.Server.AllowOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	},
		healthHandler.NewHandler(db, rdb),
		automationHandler.NewHandler(automationSvc),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)

	go func() {
		appLogger.Info("http server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err, "http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("shutting down")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "http server shutdown failed")
	}
}
