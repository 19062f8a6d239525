// Package gemini adapts the Google Gemini API to the chat model port.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/prompt"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/resilience"
)

const (
	providerName      = "gemini"
	generateOperation = "gemini.generate"
	listOperation     = "gemini.list_models"
	generateAction    = "generateContent"
)

type Options struct {
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
	HTTPClient      *http.Client
	Executor        *resilience.Executor
}

type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	executor    *resilience.Executor
}

// New fails fast without an API key: the assistant cannot run without credentials.
func New(ctx context.Context, opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "gemini client", errors.New("GOOGLE_API_KEY is not set"))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Client{
		client:      client,
		model:       NormalizeModelName(opts.Model),
		temperature: float32(opts.Temperature),
		maxTokens:   int32(opts.MaxOutputTokens),
		executor:    opts.Executor,
	}, nil
}

// NormalizeModelName strips the "models/" prefix used by the listing endpoint.
func NormalizeModelName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "models/")
}

func (c *Client) Name() string  { return providerName }
func (c *Client) Model() string { return c.model }

func (c *Client) Reply(ctx context.Context, req domain.ModelRequest) (domain.ModelReply, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, msg := range req.History {
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if msg.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(text, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = c.maxTokens
	}
	if instruction := strings.TrimSpace(req.SystemInstruction); instruction != "" {
		config.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	}

	resp, err := resilience.Do(ctx, c.executor, generateOperation, func(callCtx context.Context) (*genai.GenerateContentResponse, error) {
		return c.client.Models.GenerateContent(callCtx, c.model, contents, config)
	}, classifyGeminiError)
	if err != nil {
		return domain.ModelReply{}, wrapTemporaryIfNeeded("gemini generate", err)
	}

	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	if text == "" {
		return domain.ModelReply{}, domain.WrapError(domain.ErrEmptyReply, "gemini generate", fmt.Errorf("model %s returned no text", c.model))
	}

	reply := domain.ModelReply{Text: text, Model: c.model}
	if resp.UsageMetadata != nil {
		reply.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		reply.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if reply.CompletionTokens == 0 {
		reply.CompletionTokens = prompt.EstimateTokens(text)
	}
	return reply, nil
}

// ListModels returns models that support content generation.
func (c *Client) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	return resilience.Do(ctx, c.executor, listOperation, func(callCtx context.Context) ([]domain.ModelInfo, error) {
		out := make([]domain.ModelInfo, 0)
		for model, err := range c.client.Models.All(callCtx) {
			if err != nil {
				return nil, wrapTemporaryIfNeeded("gemini list models", err)
			}
			if model == nil || !slices.Contains(model.SupportedActions, generateAction) {
				continue
			}
			out = append(out, domain.ModelInfo{
				Name:             model.Name,
				DisplayName:      model.DisplayName,
				SupportedActions: model.SupportedActions,
			})
		}
		return out, nil
	}, classifyGeminiError)
}
