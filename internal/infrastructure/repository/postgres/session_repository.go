package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) EnsureSession(ctx context.Context, id string) (*domain.Session, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_sessions (id, turns, created_at, updated_at)
VALUES ($1, 0, $2, $2)
ON CONFLICT (id) DO NOTHING
`, id, now)
	if err != nil {
		return nil, fmt.Errorf("ensure session insert: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
SELECT id, turns, created_at, updated_at
FROM chat_sessions
WHERE id = $1
`, id)

	var session domain.Session
	if err := row.Scan(&session.ID, &session.Turns, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, fmt.Errorf("ensure session select: %w", err)
	}
	return &session, nil
}

// AppendMessages writes the messages and bumps the turn counter in one transaction.
func (r *SessionRepository) AppendMessages(ctx context.Context, sessionID string, messages ...domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	userTurns := 0
	for _, msg := range messages {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		if msg.Role == domain.RoleUser {
			userTurns++
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chat_messages (id, session_id, role, content, fallback, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, msg.ID, sessionID, msg.Role, msg.Content, msg.Fallback, msg.CreatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
UPDATE chat_sessions
SET turns = turns + $2, updated_at = $3
WHERE id = $1
`, sessionID, userTurns, now)
	if err != nil {
		return fmt.Errorf("update session turns: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrSessionNotFound, "append messages", fmt.Errorf("session %s", sessionID))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "list messages", fmt.Errorf("session %s", sessionID))
	}

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, `
SELECT id, session_id, role, content, fallback, created_at
FROM chat_messages
WHERE session_id = $1
ORDER BY seq DESC
LIMIT $2
`, sessionID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT id, session_id, role, content, fallback, created_at
FROM chat_messages
WHERE session_id = $1
ORDER BY seq ASC
`, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Fallback, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if limit > 0 {
		// Returned in descending order from SQL; reverse to keep chronological order.
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrSessionNotFound, "delete session", errors.New(id))
	}
	return nil
}

func (r *SessionRepository) PruneIdle(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE updated_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune sessions rows affected: %w", err)
	}
	return int(affected), nil
}
