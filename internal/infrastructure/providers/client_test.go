package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcusng88/FraudGuard/shared/resilience"
)

func testBreakers() *resilience.CircuitBreakerGroup {
	return resilience.NewCircuitBreakerGroup()
}

// Embed decodes the first (sorted by index) embedding vector out of an
// OpenAI-compatible response body.
func TestEmbeddingClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := NewEmbeddingClient("key", "model", srv.URL, 3, 5*time.Second, testBreakers(), 1, time.Millisecond, 2, 4)
	assert.True(t, c.Available())

	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

// A non-2xx response from the embedding endpoint surfaces as an error
// rather than a zero vector, even after the retry policy exhausts.
func TestEmbeddingClient_Embed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewEmbeddingClient("key", "model", srv.URL, 3, 5*time.Second, testBreakers(), 1, time.Millisecond, 2, 4)

	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
}

// Available reports false when either the API key or base URL is unset,
// letting the analyzer skip the embedding stage entirely.
func TestEmbeddingClient_Available(t *testing.T) {
	c := NewEmbeddingClient("", "model", "https://x", 3, time.Second, testBreakers(), 1, time.Millisecond, 2, 4)
	assert.False(t, c.Available())
}

// Complete returns the first choice's message content from a
// chat-completion-shaped response.
func TestTextClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"is_fraud\":false}"}}]}`))
	}))
	defer srv.Close()

	c := NewTextClient("key", "model", srv.URL, 5*time.Second, testBreakers(), 1, time.Millisecond, 2, 4)

	out, err := c.Complete(context.Background(), "analyze this")
	require.NoError(t, err)
	assert.Equal(t, `{"is_fraud":false}`, out)
}

// An empty choices array is a distinct failure from a transport error.
func TestTextClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewTextClient("key", "model", srv.URL, 5*time.Second, testBreakers(), 1, time.Millisecond, 2, 4)

	_, err := c.Complete(context.Background(), "analyze this")
	require.Error(t, err)
}
