// The geodds-broker binary runs admission control: it promotes PENDING
// requests to QUEUED under the per-user quota, publishes them to the worker
// queue, and requeues RUNNING requests orphaned by dead executors.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/geodds/geodds/pkg/broker"
	"github.com/geodds/geodds/pkg/config"
	"github.com/geodds/geodds/pkg/observability"
	"github.com/geodds/geodds/pkg/queue"
	"github.com/geodds/geodds/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(observability.InfoLevel, "json", os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}
	logger := observability.NewLogger(
		observability.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, os.Stdout)

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("broker exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := store.Migrate(ctx, st.DB()); err != nil {
		return err
	}

	q, err := queue.New(cfg.Queue)
	if err != nil {
		return err
	}
	defer q.Close()
	if err := q.EnsureGroup(ctx); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	health := observability.NewHealthChecker(st.DB(), q.Client())

	// a job is reaped only after twice the executor's full polling budget,
	// so a slow but live job is never stolen
	reapAge := 2 * time.Duration(cfg.Executor.ResultCheckRetries) * cfg.Executor.SleepInterval
	b := broker.New(st, q, broker.Config{
		RunningRequestLimit: cfg.Broker.RunningRequestLimit,
		CheckEvery:          cfg.Broker.CheckEvery,
		ReapAge:             reapAge,
	}, logger, metrics)

	probeMux := http.NewServeMux()
	probeMux.HandleFunc("/healthz", health.Liveness)
	probeMux.HandleFunc("/readyz", health.Readiness)
	probeMux.Handle("/metrics", observability.Handler(registry))
	probeServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.API.Host, cfg.API.HealthPort),
		Handler: probeMux,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("limit", cfg.Broker.RunningRequestLimit).Info("admission broker starting")
		return b.Run(ctx)
	})
	g.Go(func() error {
		if err := probeServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return probeServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
