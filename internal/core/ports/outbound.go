package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

// ProfileSource returns the currently loaded portfolio profile.
type ProfileSource interface {
	Current() domain.Profile
}

// ChatModel sends a prepared conversation to a hosted LLM.
type ChatModel interface {
	Name() string
	Model() string
	Reply(ctx context.Context, req domain.ModelRequest) (domain.ModelReply, error)
}

// ModelCatalog lists models available to the configured provider.
type ModelCatalog interface {
	ListModels(ctx context.Context) ([]domain.ModelInfo, error)
}

// SessionStore persists chat sessions and their messages.
type SessionStore interface {
	EnsureSession(ctx context.Context, id string) (*domain.Session, error)
	AppendMessages(ctx context.Context, sessionID string, messages ...domain.Message) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	DeleteSession(ctx context.Context, id string) error
	PruneIdle(ctx context.Context, olderThan time.Time) (int, error)
}

// TurnPublisher emits completed turns for archiving.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, event domain.TurnEvent) error
}

// TranscriptStorage appends archived turns per session.
type TranscriptStorage interface {
	AppendTurn(ctx context.Context, event domain.TurnEvent) error
	Open(ctx context.Context, sessionID string) (io.ReadCloser, error)
}

// TextExtractor extracts plain text from a résumé file.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}
