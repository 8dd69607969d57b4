package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"budgetflow/internal/amqp"
	"budgetflow/internal/cli"
	applog "budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/services"
	"budgetflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting budgetflow-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	res := cli.InitBackend(context.Background(), logger, cfg)
	store := res.Catalog

	distribution := services.NewDistributionService(store, store, store, store, cli.Publisher(res))
	incomeWorker := worker.NewIncomeWorker(distribution, store, res.KV, worker.Config{SweepInterval: cfg.IncomeSweepInterval})
	reg := metrics.NewRegistry()

	var metricsSrv *http.Server
	if cfg.WorkerMetricsPort != "" {
		r := chi.NewRouter()
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Method(http.MethodGet, "/metrics", reg.Handler())
		metricsSrv = &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: r, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", "error", err, "port", cfg.WorkerMetricsPort)
			}
		}()
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if err := incomeWorker.Stop(ctx); err != nil {
			logger.Error("Income sweep stop failed", "error", err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(ctx); err != nil {
				logger.Error("Metrics server shutdown error", "error", err)
			}
		}
		cli.RunCleanup(logger, "backend", res.Cleanup)
	})

	// The sweep catches income whose message never arrived.
	if err := incomeWorker.Start(ctx); err != nil {
		logger.Error("Failed to start income sweep", "error", err)
	}

	if res.AMQP != nil {
		handler := countingHandler(reg, incomeWorker.HandleIncomeDetected)
		go func() {
			if err := res.AMQP.ConsumeIncomeDetected(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
		logger.Info("Consuming income notifications", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Skipping AMQP message consumption - no broker configured, relying on the periodic sweep")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}

// countingHandler records the outcome of every income message.
func countingHandler(reg *metrics.Registry, next func(context.Context, *amqp.IncomeDetectedMessage) error) func(context.Context, *amqp.IncomeDetectedMessage) error {
	return func(ctx context.Context, msg *amqp.IncomeDetectedMessage) error {
		err := next(ctx, msg)
		var permanent *amqp.PermanentError
		switch {
		case err == nil:
			reg.RecordIncomeEvent("processed")
		case errors.As(err, &permanent):
			reg.RecordIncomeEvent("dropped")
		default:
			reg.RecordIncomeEvent("failed")
		}
		return err
	}
}
