package httpadapter

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/yuin/goldmark"

	"github.com/kirillkom/portfolio-chatbot/internal/config"
	"github.com/kirillkom/portfolio-chatbot/internal/core/ports"
	"github.com/kirillkom/portfolio-chatbot/internal/observability/metrics"
)

// ChatBackend is everything the HTTP surfaces need from the chat use case.
type ChatBackend interface {
	ports.ChatService
	ports.PromptService
	ProviderName() string
	ModelName() string
}

type Dependencies struct {
	Chat    ChatBackend
	Models  ports.ModelLister
	Metrics *metrics.HTTPServerMetrics
	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

type Router struct {
	cfg       config.Config
	chat      ChatBackend
	models    ports.ModelLister
	metrics   *metrics.HTTPServerMetrics
	mcp       http.Handler
	validator *requestValidator
	templates *template.Template
	markdown  goldmark.Markdown
}

func NewRouter(cfg config.Config, deps Dependencies) (*Router, error) {
	if deps.Chat == nil {
		return nil, fmt.Errorf("http router: chat backend is required")
	}
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Router{
		cfg:       cfg,
		chat:      deps.Chat,
		models:    deps.Models,
		metrics:   deps.Metrics,
		mcp:       deps.MCP,
		validator: validator,
		templates: templates,
		markdown:  newMarkdown(),
	}, nil
}

func (rt *Router) Handler() http.Handler {
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorMessage(w, http.StatusNotFound, "not found")
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r := mux.NewRouter()
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = methodNotAllowed

	r.HandleFunc("/healthz", rt.healthz).Methods(http.MethodGet)
	if rt.metrics != nil {
		r.Handle("/metrics", rt.metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/", rt.uiIndex).Methods(http.MethodGet)
	r.HandleFunc("/chat", rt.uiChat).Methods(http.MethodPost)
	r.HandleFunc("/reset", rt.uiReset).Methods(http.MethodPost)
	if rt.cfg.UIDebugModels {
		r.HandleFunc("/debug/models", rt.uiModels).Methods(http.MethodGet)
	}

	// Subrouters answer method mismatches themselves; the root router only sees a failed match.
	api := r.PathPrefix("/api/v1").Subrouter()
	api.MethodNotAllowedHandler = methodNotAllowed
	api.Use(rt.validator.Middleware)
	api.HandleFunc("/chat", rt.apiChat).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages", rt.apiSessionMessages).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/export.xlsx", rt.apiExportSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", rt.apiDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/profile", rt.apiProfile).Methods(http.MethodGet)
	api.HandleFunc("/models", rt.apiModels).Methods(http.MethodGet)

	openai := r.PathPrefix("/v1").Subrouter()
	openai.MethodNotAllowedHandler = methodNotAllowed
	openai.Use(rt.openAICompatAuthMiddleware)
	openai.HandleFunc("/models", rt.listOpenAIModels).Methods(http.MethodGet)
	openai.HandleFunc("/chat/completions", rt.chatCompletions).Methods(http.MethodPost)

	if rt.mcp != nil {
		r.PathPrefix("/mcp").Handler(rt.mcp)
	}

	var handler http.Handler = r
	handler = backpressureMiddleware(handler, rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
