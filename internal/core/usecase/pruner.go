package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/portfolio-chatbot/internal/core/ports"
)

// SessionPruner periodically drops sessions idle for longer than the TTL.
type SessionPruner struct {
	store    ports.SessionStore
	ttl      time.Duration
	interval time.Duration
	onPrune  func(n int)
	now      func() time.Time
}

func NewSessionPruner(store ports.SessionStore, ttl, interval time.Duration, onPrune func(n int)) *SessionPruner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionPruner{
		store:    store,
		ttl:      ttl,
		interval: interval,
		onPrune:  onPrune,
		now:      time.Now,
	}
}

// Run blocks until ctx is done. A non-positive TTL disables pruning.
func (p *SessionPruner) Run(ctx context.Context) {
	if p.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PruneOnce(ctx)
		}
	}
}

func (p *SessionPruner) PruneOnce(ctx context.Context) int {
	n, err := p.store.PruneIdle(ctx, p.now().Add(-p.ttl))
	if err != nil {
		slog.Warn("session_prune_failed", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("sessions_pruned", "count", n, "ttl", p.ttl.String())
		if p.onPrune != nil {
			p.onPrune(n)
		}
	}
	return n
}
