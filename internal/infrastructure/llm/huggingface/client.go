package huggingface

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/prompt"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/resilience"
)

const providerName = "huggingface"

const generateOperation = "huggingface.generate"

type Options struct {
	BaseURL      string
	Token        string
	Model        string
	Temperature  float64
	MaxNewTokens int
	Timeout      time.Duration
	HTTPClient   *http.Client
	Executor     *resilience.Executor
}

// Client talks to the hosted text-generation inference API.
type Client struct {
	baseURL      string
	token        string
	model        string
	temperature  float64
	maxNewTokens int
	httpClient   *http.Client
	executor     *resilience.Executor
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxTokens := opts.MaxNewTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		token:        strings.TrimSpace(opts.Token),
		model:        strings.Trim(strings.TrimSpace(opts.Model), "/"),
		temperature:  opts.Temperature,
		maxNewTokens: maxTokens,
		httpClient:   httpClient,
		executor:     opts.Executor,
	}
}

func (c *Client) Name() string  { return providerName }
func (c *Client) Model() string { return c.model }

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
	Options    generateOptions    `json:"options"`
}

type generateParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generateOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// Reply flattens the conversation into one transcript prompt and asks the model to continue it.
func (c *Client) Reply(ctx context.Context, req domain.ModelRequest) (domain.ModelReply, error) {
	if c.token == "" {
		return domain.ModelReply{}, domain.WrapError(domain.ErrUnauthorized, "huggingface generate", fmt.Errorf("HF_API_TOKEN is not set"))
	}
	input := prompt.BuildTranscriptPrompt(req.SystemInstruction, req.History, req.Prompt)
	payload := generateRequest{
		Inputs: input,
		Parameters: generateParameters{
			MaxNewTokens:   c.maxNewTokens,
			Temperature:    c.temperature,
			ReturnFullText: false,
		},
		Options: generateOptions{WaitForModel: true},
	}

	text, err := resilience.Do(ctx, c.executor, generateOperation, func(callCtx context.Context) (string, error) {
		return c.generate(callCtx, payload)
	}, classifyHuggingFaceError)
	if err != nil {
		return domain.ModelReply{}, wrapTemporaryIfNeeded("huggingface generate", err)
	}

	text = trimContinuation(text)
	if text == "" {
		return domain.ModelReply{}, domain.WrapError(domain.ErrEmptyReply, "huggingface generate", fmt.Errorf("model %s returned no text", c.model))
	}
	return domain.ModelReply{
		Text:             text,
		Model:            c.model,
		PromptTokens:     prompt.EstimateTokens(input),
		CompletionTokens: prompt.EstimateTokens(text),
	}, nil
}

// ListModels reports the single configured model; the inference API has no cheap listing endpoint.
func (c *Client) ListModels(context.Context) ([]domain.ModelInfo, error) {
	return []domain.ModelInfo{{
		Name:             c.model,
		DisplayName:      c.model,
		SupportedActions: []string{"text-generation"},
	}}, nil
}

// trimContinuation drops a leading speaker tag and any turn the model invents for the user.
func trimContinuation(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimSpace(strings.TrimPrefix(text, "Assistant:"))
	if idx := strings.Index(text, "\nUser:"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
