package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/kirillkom/portfolio-chatbot/internal/bootstrap"
	"github.com/kirillkom/portfolio-chatbot/internal/config"
	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/observability/logging"
)

// backend is what the commands need from the wired application.
type backend interface {
	Ask(ctx context.Context, req domain.AskRequest) (*domain.ChatTurn, error)
	Reset(ctx context.Context, sessionID string) error
	SystemInstruction() string
	ListModels(ctx context.Context) ([]domain.ModelInfo, error)
	ProviderName() string
	ModelName() string
	Close()
}

type backendFactory func(ctx context.Context) (backend, error)

type appBackend struct {
	app *bootstrap.App
}

func newAppBackend(ctx context.Context) (backend, error) {
	cfg := config.Load()
	level := cfg.LogLevel
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	slog.SetDefault(logging.New(os.Stderr, "chatctl", level, "text"))

	// One-shot process: no watcher, no pruning, no publishing.
	cfg.ProfileWatch = false
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "chatctl"})
	if err != nil {
		return nil, err
	}
	return &appBackend{app: app}, nil
}

func (b *appBackend) Ask(ctx context.Context, req domain.AskRequest) (*domain.ChatTurn, error) {
	return b.app.Chat.Ask(ctx, req)
}

func (b *appBackend) Reset(ctx context.Context, sessionID string) error {
	return b.app.Chat.Reset(ctx, sessionID)
}

func (b *appBackend) SystemInstruction() string { return b.app.Chat.SystemInstruction() }
func (b *appBackend) ProviderName() string      { return b.app.Chat.ProviderName() }
func (b *appBackend) ModelName() string         { return b.app.Chat.ModelName() }
func (b *appBackend) Close()                    { b.app.Close() }

func (b *appBackend) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	return b.app.Models.List(ctx)
}
