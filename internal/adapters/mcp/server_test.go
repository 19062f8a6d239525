package mcpadapter

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/usecase"
)

type fakeBackend struct {
	profile  domain.Profile
	requests []domain.AskRequest
	channels []string
}

func (f *fakeBackend) Ask(ctx context.Context, req domain.AskRequest) (*domain.ChatTurn, error) {
	f.requests = append(f.requests, req)
	f.channels = append(f.channels, usecase.ChannelFromContext(ctx))
	if strings.TrimSpace(req.Question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", context.Canceled)
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "generated"
	}
	return &domain.ChatTurn{SessionID: sessionID, Turn: 1, Question: req.Question, Answer: "Ada builds engines."}, nil
}

func (f *fakeBackend) History(context.Context, string) ([]domain.Message, error) { return nil, nil }
func (f *fakeBackend) Reset(context.Context, string) error                       { return nil }
func (f *fakeBackend) Profile() domain.Profile                                   { return f.profile }

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultTexts(t *testing.T, result *mcp.CallToolResult) []string {
	t.Helper()
	var out []string
	for _, c := range result.Content {
		text, ok := c.(mcp.TextContent)
		if !ok {
			t.Fatalf("unexpected content type %T", c)
		}
		out = append(out, text.Text)
	}
	return out
}

func TestAskPortfolioReturnsAnswerAndSession(t *testing.T) {
	backend := &fakeBackend{}
	s := NewServer(backend, "test")

	result, err := s.askPortfolio(context.Background(), callRequest(toolAskPortfolio, map[string]any{
		"question":   "What does Ada do?",
		"session_id": "mcp-1",
	}))
	if err != nil {
		t.Fatalf("askPortfolio() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %v", resultTexts(t, result))
	}
	texts := resultTexts(t, result)
	if len(texts) != 2 || texts[0] != "Ada builds engines." || texts[1] != "session_id: mcp-1" {
		t.Fatalf("unexpected result content: %v", texts)
	}
	if backend.channels[0] != usecase.ChannelMCP {
		t.Fatalf("expected mcp channel, got %q", backend.channels[0])
	}
}

func TestAskPortfolioErrorsAreToolResults(t *testing.T) {
	s := NewServer(&fakeBackend{}, "test")

	result, err := s.askPortfolio(context.Background(), callRequest(toolAskPortfolio, map[string]any{}))
	if err != nil {
		t.Fatalf("missing argument must not be a protocol error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result for missing question")
	}

	result, err = s.askPortfolio(context.Background(), callRequest(toolAskPortfolio, map[string]any{"question": "  "}))
	if err != nil || !result.IsError {
		t.Fatalf("expected error result for blank question, got %+v, %v", result, err)
	}
}

func TestGetProfileReturnsJSON(t *testing.T) {
	backend := &fakeBackend{profile: domain.Profile{Name: "Ada", Data: map[string]any{"name": "Ada", "skills": []any{"math"}}}}
	s := NewServer(backend, "test")

	result, err := s.getProfile(context.Background(), callRequest(toolGetProfile, nil))
	if err != nil || result.IsError {
		t.Fatalf("getProfile() = %+v, %v", result, err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(resultTexts(t, result)[0]), &decoded); err != nil {
		t.Fatalf("profile text is not JSON: %v", err)
	}
	if decoded["name"] != "Ada" {
		t.Fatalf("unexpected profile: %v", decoded)
	}

	empty := NewServer(&fakeBackend{}, "test")
	result, _ = empty.getProfile(context.Background(), callRequest(toolGetProfile, nil))
	if !result.IsError {
		t.Fatalf("expected error result when profile is missing")
	}
}

func TestToolsAreListed(t *testing.T) {
	s := NewServer(&fakeBackend{}, "test")
	response := s.mcp.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	for _, name := range []string{toolAskPortfolio, toolGetProfile} {
		if !strings.Contains(string(raw), `"`+name+`"`) {
			t.Fatalf("tools/list response is missing %s: %s", name, raw)
		}
	}
}
