// Package localfs archives chat turns as one JSON Lines file per session.
package localfs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

type Storage struct {
	basePath string
	mu       sync.Mutex
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/transcripts"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) path(sessionID string) (string, error) {
	if !domain.ValidSessionID(sessionID) {
		return "", domain.WrapError(domain.ErrInvalidInput, "transcript path", fmt.Errorf("invalid session id %q", sessionID))
	}
	return filepath.Join(s.basePath, sessionID+".jsonl"), nil
}

func (s *Storage) AppendTurn(_ context.Context, event domain.TurnEvent) error {
	path, err := s.path(event.SessionID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, sessionID string) (io.ReadCloser, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrSessionNotFound, "open transcript", err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// ReadTurns decodes a JSON Lines transcript.
func ReadTurns(r io.Reader) ([]domain.TurnEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	out := make([]domain.TurnEvent, 0)
	for line := 1; scanner.Scan(); line++ {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var event domain.TurnEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("decode transcript line %d: %w", line, err)
		}
		out = append(out, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return out, nil
}
