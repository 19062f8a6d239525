package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/portfolio-chatbot/internal/bootstrap"
	"github.com/kirillkom/portfolio-chatbot/internal/config"
	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup("worker", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", worker.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
		return worker.Queue.SubscribeTurns(gctx, func(handlerCtx context.Context, event domain.TurnEvent) error {
			started := time.Now()
			if !event.CreatedAt.IsZero() {
				worker.Metrics.ObserveEventLag("worker", started.Sub(event.CreatedAt))
			}
			worker.Metrics.StartArchive()
			err := worker.Archiver.Archive(handlerCtx, event)
			worker.Metrics.FinishArchive("worker", time.Since(started), err)
			if err != nil {
				return err
			}
			logger.Debug("turn_archived", "session_id", event.SessionID, "turn", event.Turn)
			return nil
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
}
