// Package sqlite stores chat sessions in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

// Open applies WAL mode and a busy timeout; ":memory:" is accepted for tests.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if !strings.HasPrefix(path, ":memory:") {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// Limit concurrent writers to avoid SQLITE_BUSY beyond the busy_timeout.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
id         TEXT PRIMARY KEY,
turns      INTEGER NOT NULL DEFAULT 0,
created_at DATETIME NOT NULL,
updated_at DATETIME NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
seq        INTEGER PRIMARY KEY AUTOINCREMENT,
id         TEXT NOT NULL UNIQUE,
session_id TEXT NOT NULL,
role       TEXT NOT NULL,
content    TEXT NOT NULL,
fallback   BOOLEAN NOT NULL DEFAULT 0,
created_at DATETIME NOT NULL,
FOREIGN KEY(session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session_seq ON chat_messages(session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated_at ON chat_sessions(updated_at)`,
	}
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration: %w", err)
		}
	}
	return nil
}

type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

func (r *SessionRepository) EnsureSession(ctx context.Context, id string) (*domain.Session, error) {
	now := r.now().UTC()
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions(id, turns, created_at, updated_at) VALUES(?, 0, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, now, now,
	); err != nil {
		return nil, fmt.Errorf("ensure session insert: %w", err)
	}

	var session domain.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT id, turns, created_at, updated_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.Turns, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure session select: %w", err)
	}
	return &session, nil
}

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

	now := r.now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.WrapError(domain.ErrSessionNotFound, "append messages", fmt.Errorf("session %s", sessionID))
	}

	userTurns := 0
	for _, msg := range messages {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		if msg.Role == domain.RoleUser {
			userTurns++
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages(id, session_id, role, content, fallback, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
			msg.ID, sessionID, msg.Role, msg.Content, msg.Fallback, msg.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET turns = turns + ? WHERE id = ?`, userTurns, sessionID); err != nil {
		return fmt.Errorf("update session turns: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM chat_sessions WHERE id = ?`, sessionID).Scan(&count); err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if count == 0 {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "list messages", fmt.Errorf("session %s", sessionID))
	}

	query := `SELECT id, session_id, role, content, fallback, created_at FROM (
SELECT seq, id, session_id, role, content, fallback, created_at
FROM chat_messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
) ORDER BY seq ASC`
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
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
	return out, nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.WrapError(domain.ErrSessionNotFound, "delete session", errors.New(id))
	}
	return tx.Commit()
}

func (r *SessionRepository) PruneIdle(ctx context.Context, olderThan time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	cutoff := olderThan.UTC()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE session_id IN (SELECT id FROM chat_sessions WHERE updated_at < ?)`, cutoff,
	); err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	affected, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune tx: %w", err)
	}
	return int(affected), nil
}
