package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type generatedText struct {
	GeneratedText string `json:"generated_text"`
}

func (c *Client) generate(ctx context.Context, payload generateRequest) (string, error) {
	var raw json.RawMessage
	if err := c.postJSON(ctx, "/"+c.model, payload, &raw, "generate"); err != nil {
		return "", err
	}
	return decodeGeneratedText(raw)
}

// decodeGeneratedText accepts both the list and the single-object response shapes.
func decodeGeneratedText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", nil
	}
	if trimmed[0] == '[' {
		var items []generatedText
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", fmt.Errorf("decode generate response: %w", err)
		}
		if len(items) == 0 {
			return "", nil
		}
		return items[0].GeneratedText, nil
	}
	var item generatedText
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return item.GeneratedText, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("huggingface %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newHTTPStatusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

type apiError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

func newHTTPStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))

	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err == nil && strings.TrimSpace(parsed.Error) != "" {
		msg = strings.TrimSpace(parsed.Error)
		if parsed.EstimatedTime > 0 {
			msg = fmt.Sprintf("%s (estimated_time=%.0fs)", msg, parsed.EstimatedTime)
		}
	}
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       msg,
	}
}
