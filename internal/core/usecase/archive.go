package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/ports"
)

// TranscriptArchiver appends published chat turns to the transcript archive.
type TranscriptArchiver struct {
	storage ports.TranscriptStorage
}

func NewTranscriptArchiver(storage ports.TranscriptStorage) *TranscriptArchiver {
	return &TranscriptArchiver{storage: storage}
}

func (a *TranscriptArchiver) Archive(ctx context.Context, event domain.TurnEvent) error {
	if !domain.ValidSessionID(event.SessionID) {
		return domain.WrapError(domain.ErrInvalidInput, "archive turn", fmt.Errorf("invalid session_id %q", event.SessionID))
	}
	if strings.TrimSpace(event.Question) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "archive turn", errors.New("question is empty"))
	}
	if err := a.storage.AppendTurn(ctx, event); err != nil {
		return fmt.Errorf("archive turn session=%s turn=%d: %w", event.SessionID, event.Turn, err)
	}
	return nil
}
