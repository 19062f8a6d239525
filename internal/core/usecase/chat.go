package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/ports"
	"github.com/kirillkom/portfolio-chatbot/internal/core/prompt"
)

// FallbackAnswer is stored and shown whenever the model gives nothing usable.
const FallbackAnswer = "I'm having trouble generating a response. Please check the API."

type ChatLimits struct {
	HistoryMessages  int
	MaxQuestionChars int
	Timeout          time.Duration
	Persona          string
}

// TurnStats describes one model call for metrics.
type TurnStats struct {
	Channel          string
	Provider         string
	Model            string
	FallbackReason   string
	Duration         time.Duration
	PromptTokens     int
	CompletionTokens int
}

type TurnObserver func(TurnStats)

type ChatUseCase struct {
	profiles  ports.ProfileSource
	model     ports.ChatModel
	sessions  ports.SessionStore
	publisher ports.TurnPublisher
	limits    ChatLimits
	locks     *sessionLocks
	logger    *slog.Logger
	observer  TurnObserver
	now       func() time.Time
}

func NewChatUseCase(
	profiles ports.ProfileSource,
	model ports.ChatModel,
	sessions ports.SessionStore,
	publisher ports.TurnPublisher,
	limits ChatLimits,
) *ChatUseCase {
	if limits.HistoryMessages < 0 {
		limits.HistoryMessages = 0
	}
	if limits.MaxQuestionChars <= 0 {
		limits.MaxQuestionChars = 2000
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 60 * time.Second
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &ChatUseCase{
		profiles:  profiles,
		model:     model,
		sessions:  sessions,
		publisher: publisher,
		limits:    limits,
		locks:     newSessionLocks(),
		logger:    slog.Default(),
		now:       time.Now,
	}
}

func (uc *ChatUseCase) SetLogger(logger *slog.Logger) {
	if logger != nil {
		uc.logger = logger
	}
}

func (uc *ChatUseCase) SetTurnObserver(observer TurnObserver) {
	uc.observer = observer
}

// Ask runs one turn. Model failures never fail the turn: the fallback answer is
// stored instead and the reason is reported on the result.
func (uc *ChatUseCase) Ask(ctx context.Context, req domain.AskRequest) (*domain.ChatTurn, error) {
	question, err := uc.checkQuestion("ask", req.Question, "question is required")
	if err != nil {
		return nil, err
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if !domain.ValidSessionID(sessionID) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("invalid session_id %q", sessionID))
	}

	unlock := uc.locks.lock(sessionID)
	defer unlock()

	session, err := uc.sessions.EnsureSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}
	history, err := uc.sessions.ListMessages(ctx, sessionID, uc.limits.HistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	started := uc.now()
	reply, err := uc.reply(ctx, prompt.HistoryWindow(history, uc.limits.HistoryMessages), question)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	answer := reply.Text
	reason := ""
	if err != nil {
		reason = FallbackReason(err)
		answer = FallbackAnswer
		uc.logger.Error("chat_model_failed",
			"session_id", sessionID,
			"provider", uc.model.Name(),
			"model", uc.model.Model(),
			"fallback_reason", reason,
			"error", err,
		)
	}
	modelName := reply.Model
	if modelName == "" {
		modelName = uc.model.Model()
	}
	uc.observe(ctx, reply, modelName, reason, uc.now().Sub(started))

	createdAt := uc.now().UTC()
	userMsg := domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   question,
		CreatedAt: createdAt,
	}
	assistantMsg := domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   answer,
		Fallback:  reason != "",
		CreatedAt: createdAt,
	}
	if err := uc.sessions.AppendMessages(ctx, sessionID, userMsg, assistantMsg); err != nil {
		return nil, fmt.Errorf("append messages: %w", err)
	}

	turn := &domain.ChatTurn{
		SessionID:      sessionID,
		Turn:           session.Turns + 1,
		Question:       question,
		Answer:         answer,
		Model:          modelName,
		Fallback:       reason != "",
		FallbackReason: reason,
		CreatedAt:      createdAt,
	}
	uc.publish(ctx, turn)
	return turn, nil
}

func (uc *ChatUseCase) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "history", errors.New("session_id is required"))
	}
	return uc.sessions.ListMessages(ctx, sessionID, 0)
}

func (uc *ChatUseCase) Reset(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "reset", errors.New("session_id is required"))
	}
	unlock := uc.locks.lock(sessionID)
	defer unlock()
	return uc.sessions.DeleteSession(ctx, sessionID)
}

func (uc *ChatUseCase) Profile() domain.Profile {
	return uc.profiles.Current()
}

func (uc *ChatUseCase) SystemInstruction() string {
	return prompt.BuildSystemInstruction(uc.profiles.Current(), uc.limits.Persona)
}

func (uc *ChatUseCase) ProviderName() string { return uc.model.Name() }
func (uc *ChatUseCase) ModelName() string    { return uc.model.Model() }

// Complete answers a caller-supplied conversation without touching the session store.
func (uc *ChatUseCase) Complete(ctx context.Context, history []domain.Message, question string) (*domain.ModelReply, error) {
	question, err := uc.checkQuestion("complete", question, "a user message is required")
	if err != nil {
		return nil, err
	}
	started := uc.now()
	reply, err := uc.reply(ctx, prompt.HistoryWindow(history, uc.limits.HistoryMessages), question)
	reason := ""
	if err != nil {
		reason = FallbackReason(err)
	}
	uc.observe(ctx, reply, uc.model.Model(), reason, uc.now().Sub(started))
	if err != nil {
		if reason == domain.FallbackTimeout {
			return nil, domain.WrapError(domain.ErrTemporary, "complete", err)
		}
		return nil, err
	}
	return &reply, nil
}

func (uc *ChatUseCase) checkQuestion(op, question, missing string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, op, errors.New(missing))
	}
	if utf8.RuneCountInString(question) > uc.limits.MaxQuestionChars {
		return "", domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("question exceeds %d characters", uc.limits.MaxQuestionChars))
	}
	return question, nil
}

// reply treats blank model text as an empty reply whatever the provider returned.
func (uc *ChatUseCase) reply(ctx context.Context, history []domain.Message, question string) (domain.ModelReply, error) {
	callCtx, cancel := context.WithTimeout(ctx, uc.limits.Timeout)
	defer cancel()
	reply, err := uc.model.Reply(callCtx, domain.ModelRequest{
		SystemInstruction: prompt.BuildSystemInstruction(uc.profiles.Current(), uc.limits.Persona),
		History:           history,
		Prompt:            question,
	})
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = domain.WrapError(domain.ErrEmptyReply, "chat reply", fmt.Errorf("model %s returned no text", uc.model.Model()))
	}
	return reply, err
}

func (uc *ChatUseCase) observe(ctx context.Context, reply domain.ModelReply, modelName, reason string, took time.Duration) {
	if uc.observer == nil {
		return
	}
	uc.observer(TurnStats{
		Channel:          ChannelFromContext(ctx),
		Provider:         uc.model.Name(),
		Model:            modelName,
		FallbackReason:   reason,
		Duration:         took,
		PromptTokens:     reply.PromptTokens,
		CompletionTokens: reply.CompletionTokens,
	})
}

// publish is best effort.
func (uc *ChatUseCase) publish(ctx context.Context, turn *domain.ChatTurn) {
	event := domain.TurnEvent{
		SessionID: turn.SessionID,
		Turn:      turn.Turn,
		Question:  turn.Question,
		Answer:    turn.Answer,
		Fallback:  turn.Fallback,
		Model:     turn.Model,
		CreatedAt: turn.CreatedAt,
	}
	if err := uc.publisher.PublishTurn(ctx, event); err != nil {
		uc.logger.Warn("chat_turn_publish_failed", "session_id", turn.SessionID, "turn", turn.Turn, "error", err)
	}
}

// FallbackReason maps a model error to the reason label stored with the turn.
func FallbackReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FallbackTimeout
	case domain.IsKind(err, domain.ErrEmptyReply):
		return domain.FallbackEmptyReply
	case domain.IsKind(err, domain.ErrTemporary):
		return domain.FallbackTemporary
	default:
		return domain.FallbackProviderError
	}
}

type noopPublisher struct{}

func (noopPublisher) PublishTurn(context.Context, domain.TurnEvent) error { return nil }

// sessionLocks serializes turns per session and forgets idle sessions.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &sessionLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
