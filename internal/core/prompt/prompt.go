// Package prompt assembles the persona instruction sent ahead of every
// conversation and flattens conversations for text-only models.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

const behaviourRules = `Rules:
- Answer questions about the owner's background, skills, experience and projects.
- Use only the profile below. If something is not covered, say you don't have that information and suggest contacting the owner directly.
- Speak about the owner in the third person unless quoting them.
- Keep answers concise and friendly. Markdown is allowed.
- Never invent employers, dates, links or contact details.`

// BuildSystemInstruction renders the persona block, rules, optional tone and the profile.
func BuildSystemInstruction(profile domain.Profile, persona string) string {
	var b strings.Builder

	if name := strings.TrimSpace(profile.Name); name != "" {
		b.WriteString("You are the portfolio assistant of ")
		b.WriteString(name)
		if headline := strings.TrimSpace(profile.Headline); headline != "" {
			b.WriteString(", ")
			b.WriteString(headline)
		}
		b.WriteString(".\n")
	} else {
		b.WriteString("You are a portfolio assistant.\n")
	}
	b.WriteString("Visitors of the portfolio website ask you questions about its owner.\n\n")
	b.WriteString(behaviourRules)
	b.WriteString("\n")

	if tone := strings.TrimSpace(persona); tone != "" {
		b.WriteString("\nTone:\n")
		b.WriteString(tone)
		b.WriteString("\n")
	}

	b.WriteString("\nProfile JSON:\n")
	b.WriteString(ProfileJSON(profile.Data))
	b.WriteString("\n")

	if resume := strings.TrimSpace(profile.ResumeText); resume != "" {
		b.WriteString("\nResume:\n")
		b.WriteString(resume)
		b.WriteString("\n")
	}
	return b.String()
}

// ProfileJSON pretty-prints profile data with sorted keys.
func ProfileJSON(data map[string]any) string {
	if len(data) == 0 {
		return "{}"
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(payload)
}

// BuildTranscriptPrompt flattens a conversation for models without chat roles.
func BuildTranscriptPrompt(system string, history []domain.Message, question string) string {
	var b strings.Builder
	if s := strings.TrimSpace(system); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	for _, msg := range history {
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}
		b.WriteString(speaker(msg.Role))
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\nAssistant:")
	return b.String()
}

func speaker(role string) string {
	if role == domain.RoleAssistant {
		return "Assistant"
	}
	return "User"
}

// HistoryWindow keeps the last limit messages and never starts on an assistant reply.
// limit <= 0 keeps everything.
func HistoryWindow(messages []domain.Message, limit int) []domain.Message {
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}
	for start < len(messages) && messages[start].Role == domain.RoleAssistant {
		start++
	}
	out := make([]domain.Message, len(messages)-start)
	copy(out, messages[start:])
	return out
}

// EstimateTokens approximates token usage by whitespace-separated words.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}
