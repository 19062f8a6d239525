package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

func newTestRepo(t *testing.T) *SessionRepository {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return NewSessionRepository(db)
}

func appendTurn(t *testing.T, repo *SessionRepository, sessionID, q, a string) {
	t.Helper()
	err := repo.AppendMessages(context.Background(), sessionID,
		domain.Message{ID: sessionID + q, Role: domain.RoleUser, Content: q},
		domain.Message{ID: sessionID + a, Role: domain.RoleAssistant, Content: a},
	)
	if err != nil {
		t.Fatalf("AppendMessages() error = %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	session, err := repo.EnsureSession(ctx, "s")
	if err != nil || session.Turns != 0 {
		t.Fatalf("EnsureSession() = %+v, %v", session, err)
	}
	appendTurn(t, repo, "s", "q1", "a1")
	appendTurn(t, repo, "s", "q2", "a2")

	session, err = repo.EnsureSession(ctx, "s")
	if err != nil || session.Turns != 2 {
		t.Fatalf("expected 2 turns after ensure, got %+v, %v", session, err)
	}

	all, err := repo.ListMessages(ctx, "s", 0)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	contents := make([]string, 0, len(all))
	for _, m := range all {
		contents = append(contents, m.Content)
	}
	if diff := cmp.Diff([]string{"q1", "a1", "q2", "a2"}, contents); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}

	last, err := repo.ListMessages(ctx, "s", 3)
	if err != nil || len(last) != 3 || last[0].Content != "a1" || last[2].Content != "a2" {
		t.Fatalf("unexpected window %+v, %v", last, err)
	}

	if err := repo.DeleteSession(ctx, "s"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if err := repo.DeleteSession(ctx, "s"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := repo.ListMessages(ctx, "s", 0); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAppendToMissingSession(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.AppendMessages(context.Background(), "missing", domain.Message{ID: "m", Role: domain.RoleUser, Content: "hi"})
	if !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPruneIdle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return base }
	if _, err := repo.EnsureSession(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	appendTurn(t, repo, "old", "q", "a")

	repo.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := repo.EnsureSession(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}

	n, err := repo.PruneIdle(ctx, base.Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PruneIdle() = %d, %v", n, err)
	}
	if _, err := repo.ListMessages(ctx, "old", 0); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("old session must be pruned, got %v", err)
	}
	if _, err := repo.ListMessages(ctx, "fresh", 0); err != nil {
		t.Fatalf("fresh session must survive: %v", err)
	}
}
