package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

func TestTurnEventCodec(t *testing.T) {
	event := domain.TurnEvent{
		SessionID: "s-1",
		Turn:      3,
		Question:  "Who?",
		Answer:    "Ada.",
		Model:     "gemini-1.5-flash-latest",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	payload, err := encodeTurn(event)
	if err != nil {
		t.Fatalf("encodeTurn() error = %v", err)
	}
	got, err := decodeTurn(payload)
	if err != nil {
		t.Fatalf("decodeTurn() error = %v", err)
	}
	if diff := cmp.Diff(event, got); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTurnRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"not json", `{"turn":1}`} {
		if _, err := decodeTurn([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestClassifyPublishError(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		retry bool
		count bool
	}{
		{name: "disconnected", err: fmt.Errorf("nats publish: %w", nats.ErrDisconnected), retry: true, count: true},
		{name: "reconnecting", err: nats.ErrConnectionReconnecting, retry: true, count: true},
		{name: "no servers", err: nats.ErrNoServers, retry: true, count: true},
		{name: "closed", err: fmt.Errorf("nats publish: %w", nats.ErrConnectionClosed), retry: false, count: true},
		{name: "draining", err: nats.ErrConnectionDraining, retry: false, count: true},
		{name: "oversized event", err: nats.ErrMaxPayload, retry: false, count: false},
		{name: "bad subject", err: nats.ErrBadSubject, retry: false, count: false},
		{name: "canceled", err: context.Canceled, retry: false, count: false},
		{name: "unknown", err: errors.New("boom"), retry: false, count: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyPublishError(tc.err)
			if got.Retryable != tc.retry || got.RecordFailure != tc.count {
				t.Fatalf("classifyPublishError(%v) = %+v", tc.err, got)
			}
		})
	}
}

func TestWrapPublishError(t *testing.T) {
	if err := wrapPublishError(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	if err := wrapPublishError(nats.ErrConnectionClosed); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("closed connection must not be temporary")
	}
	if err := wrapPublishError(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestHandleMessageAfterShutdownStillArchives(t *testing.T) {
	event := domain.TurnEvent{SessionID: "s-1", Turn: 1, Question: "q", Answer: "a"}
	payload, err := encodeTurn(event)
	if err != nil {
		t.Fatalf("encodeTurn() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := &Queue{handlerTimeout: time.Second}
	var got []domain.TurnEvent
	q.handleMessage(ctx, &nats.Msg{Subject: "chat.turns", Data: payload}, func(handlerCtx context.Context, e domain.TurnEvent) error {
		if err := handlerCtx.Err(); err != nil {
			t.Fatalf("handler context must outlive shutdown, got %v", err)
		}
		if _, ok := handlerCtx.Deadline(); !ok {
			t.Fatalf("handler context must carry a deadline")
		}
		got = append(got, e)
		return nil
	})
	if diff := cmp.Diff([]domain.TurnEvent{event}, got); diff != "" {
		t.Fatalf("handled events mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleMessageDropsUndecodable(t *testing.T) {
	q := &Queue{handlerTimeout: time.Second}
	q.handleMessage(context.Background(), &nats.Msg{Data: []byte("nope")}, func(context.Context, domain.TurnEvent) error {
		t.Fatalf("handler must not run for undecodable data")
		return nil
	})
}

func TestWaitDrained(t *testing.T) {
	polls := 0
	err := waitDrained(func() bool {
		polls++
		return polls < 3
	}, time.Second)
	if err != nil || polls != 3 {
		t.Fatalf("expected drain after 3 polls, got %d polls err %v", polls, err)
	}

	if err := waitDrained(func() bool { return true }, 30*time.Millisecond); err == nil {
		t.Fatalf("expected timeout error for a subscription that never drains")
	}
}

func TestNoopPublisher(t *testing.T) {
	if err := (NoopPublisher{}).PublishTurn(context.Background(), domain.TurnEvent{}); err != nil {
		t.Fatalf("noop publisher returned %v", err)
	}
}
