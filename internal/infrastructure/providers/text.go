package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/Marcusng88/FraudGuard/shared/resilience"
)

// TextClient implements domain.TextProvider against a single-shot
// chat-completion endpoint, used by the metadata and decision stages.
type TextClient struct {
	client  *resilientClient
	apiKey  string
	model   string
	baseURL string
}

func NewTextClient(apiKey, model, baseURL string, httpTimeout time.Duration, breakers *resilience.CircuitBreakerGroup, retryAttempts int, retryBaseDelay time.Duration, retryBackoff float64, concurrency int) *TextClient {
	return &TextClient{
		client:  newResilientClient(httpTimeout, breakers, "text", retryConfig(retryAttempts, retryBaseDelay, retryBackoff), concurrency),
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
	}
}

func (t *TextClient) Available() bool {
	return t.apiKey != "" && t.baseURL != ""
}

type textMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type textRequest struct {
	Model    string        `json:"model"`
	Messages []textMessage `json:"messages"`
}

type textResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as the sole user message and returns the raw
// completion text; callers are responsible for extracting/parsing JSON
// out of it via internal/llmtext.
func (t *TextClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := textRequest{
		Model:    t.model,
		Messages: []textMessage{{Role: "user", Content: prompt}},
	}

	var resp textResponse
	headers := map[string]string{"Authorization": "Bearer " + t.apiKey}
	if err := t.client.postJSON(ctx, t.baseURL, headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("text provider returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
