package localfs

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

func TestAppendAndReadTurns(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 2; i++ {
		err := store.AppendTurn(ctx, domain.TurnEvent{SessionID: "abc-1", Turn: i, Question: "q", Answer: "a", CreatedAt: now})
		if err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	rc, err := store.Open(ctx, "abc-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	turns, err := ReadTurns(rc)
	if err != nil {
		t.Fatalf("ReadTurns() error = %v", err)
	}
	if len(turns) != 2 || turns[1].Turn != 2 || !turns[0].CreatedAt.Equal(now) {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestRejectsTraversalAndMissing(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := store.AppendTurn(ctx, domain.TurnEvent{SessionID: "../escape"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := store.Open(ctx, "missing"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
