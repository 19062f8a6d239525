package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/portfolio-chatbot/internal/adapters/http"
	mcpadapter "github.com/kirillkom/portfolio-chatbot/internal/adapters/mcp"
	"github.com/kirillkom/portfolio-chatbot/internal/bootstrap"
	"github.com/kirillkom/portfolio-chatbot/internal/config"
	"github.com/kirillkom/portfolio-chatbot/internal/observability/logging"
	"github.com/kirillkom/portfolio-chatbot/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup("api", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service: "api",
		Metrics: apiMetrics,
		Publish: true,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Watcher != nil {
		if err := app.Watcher.Start(ctx); err != nil {
			logger.Warn("profile_watch_disabled", "error", err)
		}
	}
	go app.Pruner.Run(ctx)

	deps := httpadapter.Dependencies{
		Chat:    app.Chat,
		Models:  app.Models,
		Metrics: apiMetrics,
	}
	if cfg.MCPEnabled {
		deps.MCP = mcpadapter.NewServer(app.Chat, bootstrap.Version).HTTPHandler()
	}
	router, err := httpadapter.NewRouter(cfg, deps)
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ChatTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr, "provider", app.Chat.ProviderName(), "model", app.Chat.ModelName())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_failed", "error", err)
	}
}
