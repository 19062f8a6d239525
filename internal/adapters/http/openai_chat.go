package httpadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/prompt"
	"github.com/kirillkom/portfolio-chatbot/internal/core/usecase"
)

func (rt *Router) openAIModelID() string {
	if id := strings.TrimSpace(rt.cfg.OpenAICompatModelID); id != "" {
		return id
	}
	return "portfolio-assistant"
}

func (rt *Router) listOpenAIModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modelList{
		Object: "list",
		Data: []modelObject{{
			ID:      rt.openAIModelID(),
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: rt.chat.ProviderName(),
		}},
	})
}

// chatCompletions answers statelessly: the caller owns the conversation and
// the persona is always the service's own system instruction.
func (rt *Router) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	history, question, ok := splitConversation(req.Messages)
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "messages must contain a non-empty user message")
		return
	}

	ctx := usecase.WithChannel(r.Context(), usecase.ChannelOpenAI)
	reply, err := rt.chat.Complete(ctx, history, question)
	if err != nil {
		writeError(w, r, err)
		return
	}

	completionID := newCompletionID()
	created := time.Now().Unix()
	modelID := rt.openAIModelID()

	if req.Stream {
		chunks := buildTextStreamChunks(completionID, created, modelID, reply.Text, rt.cfg.OpenAICompatStreamChunkChars)
		if err := writeChatCompletionStream(w, chunks); err != nil {
			slog.Warn("openai_stream_write_failed",
				"request_id", requestIDFromContext(r.Context()),
				"error", err,
			)
		}
		return
	}

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: created,
		Model:   modelID,
		Choices: []chatCompletionChoice{{
			Index:        0,
			Message:      assistantMessage{Role: domain.RoleAssistant, Content: reply.Text},
			FinishReason: "stop",
		}},
		Usage: replyUsage(question, reply),
	})
}

func newCompletionID() string {
	return fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
}

func replyUsage(question string, reply *domain.ModelReply) usage {
	promptTokens := reply.PromptTokens
	if promptTokens == 0 {
		promptTokens = prompt.EstimateTokens(question)
	}
	completionTokens := reply.CompletionTokens
	if completionTokens == 0 {
		completionTokens = prompt.EstimateTokens(reply.Text)
	}
	return usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// splitConversation takes the latest user message as the question and the
// user/assistant messages before it as history. Client system messages are
// dropped.
func splitConversation(messages []chatMessage) ([]domain.Message, string, bool) {
	last := -1
	question := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != domain.RoleUser {
			continue
		}
		if text := extractMessageText(messages[i]); text != "" {
			last, question = i, text
			break
		}
	}
	if last < 0 {
		return nil, "", false
	}

	history := make([]domain.Message, 0, last)
	for _, msg := range messages[:last] {
		if msg.Role != domain.RoleUser && msg.Role != domain.RoleAssistant {
			continue
		}
		text := extractMessageText(msg)
		if text == "" {
			continue
		}
		history = append(history, domain.Message{Role: msg.Role, Content: text})
	}
	return history, question, true
}

func extractMessageText(message chatMessage) string {
	switch content := message.Content.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(content)
	case []any:
		parts := make([]string, 0, len(content))
		for _, item := range content {
			switch typed := item.(type) {
			case string:
				if segment := strings.TrimSpace(typed); segment != "" {
					parts = append(parts, segment)
				}
			case map[string]any:
				if text, ok := typed["text"].(string); ok {
					if segment := strings.TrimSpace(text); segment != "" {
						parts = append(parts, segment)
					}
				}
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	default:
		payload, err := json.Marshal(content)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(payload))
	}
}
