package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenRouterClient calls the OpenRouter chat-completions API. It is
// stateless: the caller supplies the full message array on every call.
type OpenRouterClient struct {
	baseURL string
	client  *http.Client
}

func NewOpenRouterClient(baseURL string) *OpenRouterClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Chat sends a pre-formed message array and returns the first choice's text.
func (o *OpenRouterClient) Chat(ctx context.Context, apiKey, model string, messages []Message) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("openrouter api key is not set")
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("openrouter messages array cannot be empty")
	}
	payload, err := json.Marshal(map[string]any{
		"model":    model,
		"messages": messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshal openrouter request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build openrouter request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openrouter request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &errBody); err == nil && errBody.Error.Message != "" {
			return "", fmt.Errorf("openrouter api error: %s", errBody.Error.Message)
		}
		return "", fmt.Errorf("openrouter api error %d: %s", resp.StatusCode, resp.Status)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode openrouter response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openrouter returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Generate adapts the chat-completions API to the one-shot Generator
// surface. Inline binary parts and search grounding are unsupported on this
// backend and are dropped.
func (o *OpenRouterClient) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	var text strings.Builder
	for _, p := range req.Parts {
		if p.Text != "" {
			text.WriteString(p.Text)
		}
	}
	messages := make([]Message, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemInstruction})
	}
	messages = append(messages, Message{Role: "user", Content: text.String()})
	out, err := o.Chat(ctx, req.APIKey, req.Model, messages)
	if err != nil {
		return GenerateResult{}, err
	}
	return GenerateResult{Text: out}, nil
}
