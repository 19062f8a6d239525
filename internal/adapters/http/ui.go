package httpadapter

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/usecase"
)

const (
	sessionCookieName = "pcb_session"
	pageTitle         = "My Portfolio Chatbot"
	questionHint      = "What would you like to ask?"
)

//go:embed templates/*.html
var templateFS embed.FS

type uiMessage struct {
	Role     string
	Text     string
	HTML     template.HTML
	Fallback bool
}

type indexPage struct {
	Title       string
	Intro       string
	Placeholder string
	Messages    []uiMessage
	Error       string
	Question    string
	DebugModels bool
}

type modelsPage struct {
	Title       string
	Provider    string
	ActiveModel string
	Models      []domain.ModelInfo
	Error       string
}

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse ui templates: %w", err)
	}
	return tmpl, nil
}

// newMarkdown renders assistant replies. Raw HTML in replies is omitted
// because goldmark is not configured with WithUnsafe.
func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)
}

func (rt *Router) renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := rt.markdown.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func (rt *Router) uiIndex(w http.ResponseWriter, r *http.Request) {
	page := rt.newIndexPage()
	if sessionID := sessionFromCookie(r); sessionID != "" {
		noteSession(r, sessionID)
		messages, err := rt.chat.History(r.Context(), sessionID)
		switch {
		case err == nil:
			page.Messages = rt.toUIMessages(messages)
		case domain.IsKind(err, domain.ErrSessionNotFound):
		default:
			page.Error = "Could not load the conversation."
			slog.Warn("ui_history_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		}
	}
	rt.render(w, r, http.StatusOK, "index.html", page)
}

func (rt *Router) uiChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		rt.renderChatError(w, r, "", "", domain.WrapError(domain.ErrInvalidInput, "ui chat", err))
		return
	}
	question := r.PostFormValue("question")

	sessionID := sessionFromCookie(r)
	if sessionID == "" {
		sessionID = uuid.NewString()
		rt.setSessionCookie(w, r, sessionID)
	}
	noteSession(r, sessionID)

	ctx := usecase.WithChannel(r.Context(), usecase.ChannelUI)
	if _, err := rt.chat.Ask(ctx, domain.AskRequest{SessionID: sessionID, Question: question}); err != nil {
		rt.renderChatError(w, r, sessionID, question, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (rt *Router) renderChatError(w http.ResponseWriter, r *http.Request, sessionID, question string, err error) {
	status := mapErrorToHTTPStatus(err)
	page := rt.newIndexPage()
	page.Question = question
	if status == http.StatusBadRequest {
		page.Error = "Please enter a question."
		if strings.TrimSpace(question) != "" {
			page.Error = "That question could not be accepted. Please shorten it and try again."
		}
	} else {
		page.Error = "Something went wrong. Please try again."
		slog.Error("ui_chat_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	if sessionID != "" {
		if messages, histErr := rt.chat.History(r.Context(), sessionID); histErr == nil {
			page.Messages = rt.toUIMessages(messages)
		}
	}
	rt.render(w, r, status, "index.html", page)
}

func (rt *Router) uiReset(w http.ResponseWriter, r *http.Request) {
	if sessionID := sessionFromCookie(r); sessionID != "" {
		noteSession(r, sessionID)
		err := rt.chat.Reset(r.Context(), sessionID)
		if err != nil && !domain.IsKind(err, domain.ErrSessionNotFound) {
			slog.Warn("ui_reset_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (rt *Router) uiModels(w http.ResponseWriter, r *http.Request) {
	page := modelsPage{
		Title:       pageTitle,
		Provider:    rt.chat.ProviderName(),
		ActiveModel: rt.chat.ModelName(),
	}
	models, err := rt.listModels(r)
	if err != nil {
		page.Error = err.Error()
		rt.render(w, r, mapErrorToHTTPStatus(err), "models.html", page)
		return
	}
	page.Models = models
	rt.render(w, r, http.StatusOK, "models.html", page)
}

func (rt *Router) newIndexPage() indexPage {
	return indexPage{
		Title:       pageTitle,
		Intro:       fmt.Sprintf("Ask me anything! I'm powered by %s (%s).", rt.chat.ModelName(), rt.chat.ProviderName()),
		Placeholder: questionHint,
		DebugModels: rt.cfg.UIDebugModels,
	}
}

func (rt *Router) toUIMessages(messages []domain.Message) []uiMessage {
	out := make([]uiMessage, 0, len(messages))
	for _, msg := range messages {
		item := uiMessage{Role: msg.Role, Text: msg.Content, Fallback: msg.Fallback}
		if msg.Role == domain.RoleAssistant {
			item.HTML = rt.renderMarkdown(msg.Content)
		}
		out = append(out, item)
	}
	return out
}

func (rt *Router) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := rt.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("ui_render_failed", "request_id", requestIDFromContext(r.Context()), "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func sessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || !domain.ValidSessionID(cookie.Value) {
		return ""
	}
	return cookie.Value
}

func (rt *Router) setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if rt.cfg.SessionTTL > 0 {
		cookie.MaxAge = int(rt.cfg.SessionTTL.Seconds())
	}
	http.SetCookie(w, cookie)
}
