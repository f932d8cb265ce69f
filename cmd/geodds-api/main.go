// The geodds-api binary is the HTTP gateway: catalog browsing, size
// estimates, request submission and artifact downloads.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/geodds/geodds/pkg/api"
	"github.com/geodds/geodds/pkg/catalog"
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
		logger.WithError(err).Error("gateway exited with error")
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

	cat, err := catalog.Open(cfg.Catalog.CatalogPath)
	if err != nil {
		return err
	}
	watcher, err := catalog.NewWatcher(cat, logger)
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
	health := observability.NewHealthChecker(st.DB(), nil)

	server := api.NewServer(st, cat, engine, queue.NewCodec(cfg.Queue.Separator), st, logger, metrics)
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.API.Host, cfg.API.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
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
		logger.WithField("addr", httpServer.Addr).Info("gateway listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := probeServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()
		probeServer.Shutdown(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
