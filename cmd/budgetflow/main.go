package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetflow/internal/adapters"
	"budgetflow/internal/cli"
	apphttp "budgetflow/internal/http"
	applog "budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	store := res.Catalog

	ledger := services.NewAllocationLedger(store, store, store, store)
	advisor := services.NewTransferAdvisor(store, store, store)
	distribution := services.NewDistributionService(store, store, store, store, cli.Publisher(res))
	notifications := services.NewNotificationAggregator(ledger, advisor, store, store, store, services.NewDismissals(res.KV))

	reg := metrics.NewRegistry()
	if cached, ok := store.(*adapters.CachedCatalog); ok {
		reg.RegisterCacheStats(cached.CacheStats)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Services{
		Ledger:        ledger,
		Distribution:  distribution,
		Advisor:       advisor,
		Notifications: notifications,
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Ready:              res.Ready,
		Metrics:            reg,
		Logger:             logger,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 15 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cli.RunCleanup(logger, "backend", res.Cleanup)
	})

	logger.Info("Starting budgetflow server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"income_plans", cfg.IncomePlansSource,
		"amqp", res.AMQP != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		cli.RunCleanup(logger, "backend", res.Cleanup)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
