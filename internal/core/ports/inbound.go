package ports

import (
	"context"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

// ChatService is the inbound contract for portfolio conversations.
type ChatService interface {
	Ask(ctx context.Context, req domain.AskRequest) (*domain.ChatTurn, error)
	History(ctx context.Context, sessionID string) ([]domain.Message, error)
	Reset(ctx context.Context, sessionID string) error
}

// PromptService exposes the assembled persona for stateless callers.
type PromptService interface {
	Profile() domain.Profile
	SystemInstruction() string
	Complete(ctx context.Context, history []domain.Message, prompt string) (*domain.ModelReply, error)
}

// ModelLister is the inbound read model for provider models.
type ModelLister interface {
	List(ctx context.Context) ([]domain.ModelInfo, error)
}
