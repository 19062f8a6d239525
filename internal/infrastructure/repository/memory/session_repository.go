// Package memory keeps chat sessions in process memory.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

type sessionEntry struct {
	session  domain.Session
	messages []domain.Message
}

type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	now      func() time.Time
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
}

func (r *SessionRepository) EnsureSession(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		now := r.now().UTC()
		entry = &sessionEntry{session: domain.Session{ID: id, CreatedAt: now, UpdatedAt: now}}
		r.sessions[id] = entry
	}
	session := entry.session
	return &session, nil
}

func (r *SessionRepository) AppendMessages(_ context.Context, sessionID string, messages ...domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sessionID]
	if !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "append messages", fmt.Errorf("session %s", sessionID))
	}
	now := r.now().UTC()
	for _, msg := range messages {
		msg.SessionID = sessionID
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		if msg.Role == domain.RoleUser {
			entry.session.Turns++
		}
		entry.messages = append(entry.messages, msg)
	}
	entry.session.UpdatedAt = now
	return nil
}

func (r *SessionRepository) ListMessages(_ context.Context, sessionID string, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "list messages", fmt.Errorf("session %s", sessionID))
	}
	msgs := entry.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *SessionRepository) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "delete session", errors.New(id))
	}
	delete(r.sessions, id)
	return nil
}

func (r *SessionRepository) PruneIdle(_ context.Context, olderThan time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for id, entry := range r.sessions {
		if entry.session.UpdatedAt.Before(olderThan) {
			delete(r.sessions, id)
			pruned++
		}
	}
	return pruned, nil
}
