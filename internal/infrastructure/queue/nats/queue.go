package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/resilience"
)

const (
	archiverQueueGroup = "archivers"
	drainPollInterval  = 20 * time.Millisecond
)

type Queue struct {
	conn           *nats.Conn
	subject        string
	executor       *resilience.Executor
	handlerTimeout time.Duration
	drainTimeout   time.Duration
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// HandlerTimeout bounds one archive call, including calls made while draining.
	HandlerTimeout time.Duration
	// DrainTimeout bounds how long shutdown waits for buffered events.
	DrainTimeout time.Duration
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	handlerTimeout := options.HandlerTimeout
	if handlerTimeout <= 0 {
		handlerTimeout = 30 * time.Second
	}
	drainTimeout := options.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("portfolio-chatbot"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		subject:        subject,
		executor:       options.ResilienceExecutor,
		handlerTimeout: handlerTimeout,
		drainTimeout:   drainTimeout,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishTurn(ctx context.Context, event domain.TurnEvent) error {
	payload, err := encodeTurn(event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	return wrapPublishError(err)
}

// SubscribeTurns blocks until ctx is done, then drains the subscription and waits
// until every buffered event has been handled. Undecodable messages are logged and dropped.
func (q *Queue) SubscribeTurns(ctx context.Context, handler func(context.Context, domain.TurnEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, archiverQueueGroup, func(msg *nats.Msg) {
		q.handleMessage(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return waitDrained(sub.IsValid, q.drainTimeout)
}

// handleMessage detaches from ctx cancellation: drained messages arrive after
// shutdown has begun and must still reach the handler.
func (q *Queue) handleMessage(ctx context.Context, msg *nats.Msg, handler func(context.Context, domain.TurnEvent) error) {
	event, err := decodeTurn(msg.Data)
	if err != nil {
		slog.Error("turn_event_decode_failed", "subject", msg.Subject, "error", err)
		return
	}

	timeout := q.handlerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := handler(handlerCtx, event); err != nil {
		slog.Error("turn_event_handler_failed", "session_id", event.SessionID, "turn", event.Turn, "error", err)
	}
}

// waitDrained polls until the drained subscription is closed by the client.
func waitDrained(active func() bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for active() {
		if time.Now().After(deadline) {
			return fmt.Errorf("nats drain: events still pending after %s", timeout)
		}
		time.Sleep(drainPollInterval)
	}
	return nil
}

func encodeTurn(event domain.TurnEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode turn event: %w", err)
	}
	return payload, nil
}

func decodeTurn(data []byte) (domain.TurnEvent, error) {
	var event domain.TurnEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.TurnEvent{}, fmt.Errorf("decode turn event: %w", err)
	}
	if event.SessionID == "" {
		return domain.TurnEvent{}, errors.New("decode turn event: session_id is empty")
	}
	return event, nil
}

// NoopPublisher is used when no NATS server is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishTurn(context.Context, domain.TurnEvent) error { return nil }
