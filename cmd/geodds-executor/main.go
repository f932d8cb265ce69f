// The geodds-executor binary is a compute worker: it consumes queued
// requests, runs them on a bounded pool and records the resulting artifacts.
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

	"github.com/geodds/geodds/pkg/artifacts"
	"github.com/geodds/geodds/pkg/catalog"
	"github.com/geodds/geodds/pkg/config"
	"github.com/geodds/geodds/pkg/executor"
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
		logger.WithError(err).Error("executor exited with error")
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

	results, err := artifacts.NewStore(cfg.Results.StorePath)
	if err != nil {
		return err
	}
	uris, err := uriBuilder(ctx, cfg.Results)
	if err != nil {
		return err
	}

	opener, err := catalog.NewFSOpener(cfg.Catalog.CachePath)
	if err != nil {
		return err
	}
	engine := catalog.NewEngine(opener)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	health := observability.NewHealthChecker(st.DB(), q.Client())

	exec := executor.New(st, q, engine, results, uris, cfg.Executor, logger, metrics)
	if err := exec.Register(ctx); err != nil {
		return err
	}

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
		logger.WithField("slots", cfg.Executor.NWorkers).Info("executor starting")
		return exec.Run(ctx)
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

// uriBuilder uploads to S3 when a bucket is configured and falls back to the
// gateway's own /download route otherwise.
func uriBuilder(ctx context.Context, cfg config.ResultsConfig) (artifacts.URIBuilder, error) {
	if cfg.S3Bucket != "" {
		return artifacts.NewS3Uploader(ctx, cfg)
	}
	return artifacts.LocalURIs{}, nil
}
