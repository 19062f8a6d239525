package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/portfolio-chatbot/internal/config"
	"github.com/kirillkom/portfolio-chatbot/internal/core/ports"
	"github.com/kirillkom/portfolio-chatbot/internal/core/usecase"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/extractor"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/llm/huggingface"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/profile"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/queue/nats"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/repository/memory"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/resilience"
	"github.com/kirillkom/portfolio-chatbot/internal/observability/metrics"
)

// Version is stamped at build time with -ldflags "-X .../bootstrap.Version=...".
var Version = "dev"

type Options struct {
	// Service labels logs and metrics: "api", "chatctl".
	Service string
	// Metrics is optional; without it turns, retries and reloads are not counted.
	Metrics *metrics.HTTPServerMetrics
	// Publish enables the NATS turn publisher when NATS_URL is set.
	Publish bool
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Chat     *usecase.ChatUseCase
	Models   *usecase.ModelCatalogUseCase
	Profiles *profile.Provider
	Watcher  *profile.Watcher
	Pruner   *usecase.SessionPruner

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	service := opts.Service
	if service == "" {
		service = "api"
	}
	logger := slog.Default().With("component", "bootstrap")

	app := &App{Config: cfg, Logger: slog.Default()}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialBackoff,
		RetryMaxBackoff:     cfg.RetryMaxBackoff,
		BreakerEnabled:      cfg.BreakerEnabled,
		OnRetry: func(operation string, _ int, _ error) {
			if opts.Metrics != nil {
				opts.Metrics.RecordRetry(service, operation)
			}
		},
	})

	model, catalog, err := newChatModel(ctx, cfg, executor)
	if err != nil {
		return nil, err
	}

	loader := profile.NewLoader(profile.LoaderOptions{
		Path:           cfg.ProfilePath,
		ResumePath:     cfg.ProfileResumePath,
		ResumeMaxChars: cfg.ProfileResumeMaxChars,
		Extractor:      extractor.New(),
		Logger:         app.Logger,
	})
	initial, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	app.Profiles = profile.NewProvider(initial)
	logger.Info("profile_loaded", "path", cfg.ProfilePath, "name", initial.Name, "has_resume", initial.ResumeText != "")

	if cfg.ProfileWatch {
		app.Watcher = profile.NewWatcher(loader, app.Profiles, profile.WatcherOptions{
			Logger: app.Logger,
			OnReload: func(err error) {
				if opts.Metrics != nil {
					opts.Metrics.RecordProfileReload(service, err)
				}
			},
		})
	}

	store, err := app.openSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var publisher ports.TurnPublisher = nats.NoopPublisher{}
	if opts.Publish && cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(publishResilienceConfig(cfg)),
		})
		if err != nil {
			return nil, fmt.Errorf("init turn publisher: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		publisher = queue
		logger.Info("turn_publisher_enabled", "subject", cfg.NATSSubject)
	}

	app.Chat = usecase.NewChatUseCase(app.Profiles, model, store, publisher, usecase.ChatLimits{
		HistoryMessages:  cfg.ChatHistoryMessages,
		MaxQuestionChars: cfg.ChatMaxQuestionChars,
		Timeout:          cfg.ChatTimeout,
		Persona:          cfg.AssistantPersona,
	})
	app.Chat.SetLogger(app.Logger)
	if m := opts.Metrics; m != nil {
		app.Chat.SetTurnObserver(func(stats usecase.TurnStats) {
			m.RecordChatTurn(service, stats.Channel, stats.Provider, stats.FallbackReason, stats.Duration)
			m.RecordTokenUsage(service, stats.Provider, stats.Model, stats.PromptTokens, stats.CompletionTokens)
		})
	}
	app.Models = usecase.NewModelCatalogUseCase(catalog)

	app.Pruner = usecase.NewSessionPruner(store, cfg.SessionTTL, time.Minute, func(n int) {
		if opts.Metrics != nil {
			opts.Metrics.RecordSessionsPruned(n)
		}
	})

	logger.Info("app_ready",
		"provider", model.Name(),
		"model", model.Model(),
		"session_store", cfg.SessionStore,
	)
	ok = true
	return app, nil
}

type providerClient interface {
	ports.ChatModel
	ports.ModelCatalog
}

func newChatModel(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ChatModel, ports.ModelCatalog, error) {
	var client providerClient
	switch cfg.LLMProvider {
	case config.ProviderHuggingFace:
		client = huggingface.New(huggingface.Options{
			BaseURL:      cfg.HFBaseURL,
			Token:        cfg.HFAPIToken,
			Model:        cfg.HFModel,
			Temperature:  cfg.LLMTemperature,
			MaxNewTokens: cfg.LLMMaxOutputTokens,
			Timeout:      cfg.ChatTimeout,
			Executor:     executor,
		})
	default:
		gc, err := gemini.New(ctx, gemini.Options{
			APIKey:          cfg.GoogleAPIKey,
			Model:           cfg.GeminiModel,
			BaseURL:         cfg.GeminiBaseURL,
			Temperature:     cfg.LLMTemperature,
			MaxOutputTokens: cfg.LLMMaxOutputTokens,
			Timeout:         cfg.ChatTimeout,
			Executor:        executor,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init gemini client: %w", err)
		}
		client = gc
	}
	return client, client, nil
}

func (a *App) openSessionStore(ctx context.Context, cfg config.Config) (ports.SessionStore, error) {
	switch cfg.SessionStore {
	case config.StorePostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closeDB(db)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		return postgres.NewSessionRepository(db), nil
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closeDB(db)
		if err := sqlite.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure sqlite schema: %w", err)
		}
		return sqlite.NewSessionRepository(db), nil
	default:
		return memory.NewSessionRepository(), nil
	}
}

func (a *App) closeDB(db *sql.DB) {
	a.closers = append(a.closers, func() { _ = db.Close() })
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	if a.Watcher != nil {
		a.Watcher.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// publishResilienceConfig bounds turn publishing, which runs inside the chat request.
// It has no retry observer, so provider retry metrics only count provider calls.
func publishResilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        2,
		RetryInitialBackoff:     50 * time.Millisecond,
		RetryMaxBackoff:         200 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeout:      10 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}
