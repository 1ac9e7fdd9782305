package providers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Marcusng88/FraudGuard/shared/resilience"
)

// EmbeddingClient implements domain.EmbeddingProvider against an
// OpenAI-compatible /embeddings endpoint.
type EmbeddingClient struct {
	client     *resilientClient
	apiKey     string
	model      string
	baseURL    string
	dimensions int
}

func NewEmbeddingClient(apiKey, model, baseURL string, dimensions int, httpTimeout time.Duration, breakers *resilience.CircuitBreakerGroup, retryAttempts int, retryBaseDelay time.Duration, retryBackoff float64, concurrency int) *EmbeddingClient {
	return &EmbeddingClient{
		client:     newResilientClient(httpTimeout, breakers, "embedding", retryConfig(retryAttempts, retryBaseDelay, retryBackoff), concurrency),
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		dimensions: dimensions,
	}
}

func (e *EmbeddingClient) Available() bool {
	return e.apiKey != "" && e.baseURL != ""
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// Embed sends a single text through the embeddings endpoint and
// returns its vector as float32, the width the similarity index and
// the length-prefixed float32 bytea column in Postgres use.
func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req := embeddingRequest{
		Model:      e.model,
		Input:      []string{text},
		Dimensions: e.dimensions,
	}

	var resp embeddingResponse
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	if err := e.client.postJSON(ctx, e.baseURL+"/embeddings", headers, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding provider returned no data")
	}

	sort.Slice(resp.Data, func(i, j int) bool {
		return resp.Data[i].Index < resp.Data[j].Index
	})

	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}
