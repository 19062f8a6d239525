package domain

import (
	"regexp"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	FallbackTimeout       = "timeout"
	FallbackTemporary     = "temporary"
	FallbackEmptyReply    = "empty_reply"
	FallbackProviderError = "provider_error"
)

type Session struct {
	ID        string    `json:"id"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Fallback  bool      `json:"fallback,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AskRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question"`
}

// ChatTurn is the outcome of a single question/answer exchange.
type ChatTurn struct {
	SessionID      string    `json:"session_id"`
	Turn           int       `json:"turn"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Model          string    `json:"model"`
	Fallback       bool      `json:"fallback"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TurnEvent is published after every completed turn for archiving.
type TurnEvent struct {
	SessionID string    `json:"session_id"`
	Turn      int       `json:"turn"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Fallback  bool      `json:"fallback"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

type ModelRequest struct {
	SystemInstruction string
	History           []Message
	Prompt            string
}

type ModelReply struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

type ModelInfo struct {
	Name             string   `json:"name"`
	DisplayName      string   `json:"display_name,omitempty"`
	SupportedActions []string `json:"supported_actions"`
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidSessionID reports whether id is safe to use as a storage key.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}
