package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/usecase"
)

type fakeBackend struct {
	asks     []domain.AskRequest
	channels []string
	resets   []string
	closed   bool
}

func (f *fakeBackend) Ask(ctx context.Context, req domain.AskRequest) (*domain.ChatTurn, error) {
	f.asks = append(f.asks, req)
	f.channels = append(f.channels, usecase.ChannelFromContext(ctx))
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "sess-1"
	}
	return &domain.ChatTurn{SessionID: sessionID, Question: req.Question, Answer: "answer to " + req.Question}, nil
}

func (f *fakeBackend) Reset(_ context.Context, sessionID string) error {
	f.resets = append(f.resets, sessionID)
	return nil
}

func (f *fakeBackend) SystemInstruction() string { return "You are the portfolio assistant of Ada." }
func (f *fakeBackend) ProviderName() string      { return "fake" }
func (f *fakeBackend) ModelName() string         { return "fake-model" }
func (f *fakeBackend) Close()                    { f.closed = true }

func (f *fakeBackend) ListModels(context.Context) ([]domain.ModelInfo, error) {
	return []domain.ModelInfo{{Name: "fake-model", DisplayName: "Fake", SupportedActions: []string{"generateContent"}}}, nil
}

func runCLI(t *testing.T, b *fakeBackend, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd(func(context.Context) (backend, error) { return b, nil })
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestAskCommand(t *testing.T) {
	b := &fakeBackend{}
	out, errOut, err := runCLI(t, b, "", "ask", "--plain", "Who", "is", "Ada?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if out != "answer to Who is Ada?\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(errOut, "session: sess-1") {
		t.Fatalf("expected session hint on stderr, got %q", errOut)
	}
	if b.channels[0] != usecase.ChannelCLI || !b.closed {
		t.Fatalf("expected cli channel and closed backend, got %v closed=%v", b.channels, b.closed)
	}
}

func TestAskCommandReusesSession(t *testing.T) {
	b := &fakeBackend{}
	_, errOut, err := runCLI(t, b, "", "ask", "--plain", "--session", "abc", "hello")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if b.asks[0].SessionID != "abc" || errOut != "" {
		t.Fatalf("unexpected session handling: %+v, stderr %q", b.asks, errOut)
	}
}

func TestChatREPL(t *testing.T) {
	b := &fakeBackend{}
	out, _, err := runCLI(t, b, "hi\n\n/reset\nagain\n/exit\nignored\n", "chat", "--plain")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	var questions, sessions []string
	for _, a := range b.asks {
		questions = append(questions, a.Question)
		sessions = append(sessions, a.SessionID)
	}
	if diff := cmp.Diff([]string{"hi", "again"}, questions); diff != "" {
		t.Fatalf("questions mismatch (-want +got):\n%s", diff)
	}
	// the first turn starts a session, /reset forgets it
	if diff := cmp.Diff([]string{"", ""}, sessions); diff != "" {
		t.Fatalf("session ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"sess-1"}, b.resets); diff != "" {
		t.Fatalf("resets mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{"powered by fake-model (fake)", "answer to hi", "Conversation cleared.", "answer to again"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestModelsAndPromptCommands(t *testing.T) {
	out, _, err := runCLI(t, &fakeBackend{}, "", "models")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if !strings.Contains(out, "fake-model (Fake)\tgenerateContent") {
		t.Fatalf("unexpected models output %q", out)
	}

	out, _, err = runCLI(t, &fakeBackend{}, "", "prompt")
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if out != "You are the portfolio assistant of Ada.\n" {
		t.Fatalf("unexpected prompt output %q", out)
	}
}

func TestBackendFailureIsReturned(t *testing.T) {
	root := newRootCmd(func(context.Context) (backend, error) { return nil, errors.New("GOOGLE_API_KEY is required") })
	var sink bytes.Buffer
	root.SetOut(&sink)
	root.SetErr(&sink)
	root.SetArgs([]string{"prompt"})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatalf("expected bootstrap error")
	}
}
