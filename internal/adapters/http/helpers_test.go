package httpadapter

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/portfolio-chatbot/internal/config"
	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/ports"
	"github.com/kirillkom/portfolio-chatbot/internal/core/usecase"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/profile"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/repository/memory"
)

type scriptedModel struct {
	mu       sync.Mutex
	reply    domain.ModelReply
	err      error
	requests []domain.ModelRequest
}

func (m *scriptedModel) Name() string  { return "fake" }
func (m *scriptedModel) Model() string { return "fake-model" }

func (m *scriptedModel) Reply(_ context.Context, req domain.ModelRequest) (domain.ModelReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return domain.ModelReply{}, m.err
	}
	return m.reply, nil
}

func (m *scriptedModel) lastRequest(t *testing.T) domain.ModelRequest {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		t.Fatalf("model was not called")
	}
	return m.requests[len(m.requests)-1]
}

type fakeModelLister struct {
	models []domain.ModelInfo
	err    error
}

func (f fakeModelLister) List(context.Context) ([]domain.ModelInfo, error) {
	return f.models, f.err
}

func testProfile() domain.Profile {
	return domain.Profile{
		Name:     "Ada Lovelace",
		Headline: "Analytical engine programmer",
		Data: map[string]any{
			"name":   "Ada Lovelace",
			"skills": []any{"mathematics", "poetry"},
		},
		ResumeText: "Wrote the first published algorithm.",
		LoadedAt:   time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestChat(model ports.ChatModel) *usecase.ChatUseCase {
	return usecase.NewChatUseCase(
		profile.NewProvider(testProfile()),
		model,
		memory.NewSessionRepository(),
		nil,
		usecase.ChatLimits{HistoryMessages: 10, MaxQuestionChars: 200, Timeout: time.Second},
	)
}

func newTestRouter(t *testing.T, cfg config.Config, model *scriptedModel, lister ports.ModelLister) http.Handler {
	t.Helper()
	if model == nil {
		model = &scriptedModel{reply: domain.ModelReply{Text: "Hello from Ada's assistant."}}
	}
	router, err := NewRouter(cfg, Dependencies{Chat: newTestChat(model), Models: lister})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	model := &scriptedModel{reply: domain.ModelReply{Text: "ok"}}
	router, err := NewRouter(cfg, Dependencies{Chat: newTestChat(model)})
	if err != nil {
		panic(err)
	}
	return router.Handler()
}
