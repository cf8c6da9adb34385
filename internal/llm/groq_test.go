package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/testforge/qaagent/internal/domain"
)

func newTestGroq(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *GroqClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewGroqClient(GroqConfig{
		APIKey:       "gsk-test",
		BaseURL:      srv.URL,
		Model:        "llama-3.1-8b-instant",
		Timeout:      timeout,
		RateLimitRPM: 6000,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestGroqClient_Generate(t *testing.T) {
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-3.1-8b-instant", req.Model)
		assert.InDelta(t, 0.3, *req.Temperature, 1e-6)
		assert.Equal(t, 3000, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "You are a QA engineer.", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[]"}}],"usage":{"prompt_tokens":10,"completion_tokens":1}}`))
	}, 5*time.Second)

	out, err := c.Generate(context.Background(), "Generate test cases", GenerateOptions{
		System:      "You are a QA engineer.",
		Temperature: 0.3,
		MaxTokens:   3000,
	})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestGroqClient_NoSystemPrompt(t *testing.T) {
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}, 5*time.Second)

	out, err := c.Generate(context.Background(), "hi", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestGroqClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		want    error
	}{
		{
			name: "non-200 is unreachable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
			},
			timeout: 5 * time.Second,
			want:    domain.ErrModelUnreachableSentinel,
		},
		{
			name: "empty choices is unreachable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices":[]}`))
			},
			timeout: 5 * time.Second,
			want:    domain.ErrModelUnreachableSentinel,
		},
		{
			name: "slow server times out",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout: 50 * time.Millisecond,
			want:    domain.ErrModelTimeoutSentinel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestGroq(t, tt.handler, tt.timeout)

			_, err := c.Generate(context.Background(), "prompt", GenerateOptions{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestGroqClient_IsAvailable(t *testing.T) {
	up := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"data":[]}`))
	}, 5*time.Second)
	assert.True(t, up.IsAvailable(context.Background()))

	down := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}, 5*time.Second)
	assert.False(t, down.IsAvailable(context.Background()))
}

func TestGroqClient_IsAvailableBoundedOnSlowServer(t *testing.T) {
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 30*time.Second)
	c.availabilityTimeout = 50 * time.Millisecond

	start := time.Now()
	assert.False(t, c.IsAvailable(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestGroqClient_APIErrorCarriesStatus(t *testing.T) {
	c := newTestGroq(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit reached","type":"requests"}}`))
	}, 5*time.Second)

	_, err := c.Generate(context.Background(), "prompt", GenerateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestNewGroqClient_RequiresKey(t *testing.T) {
	_, err := NewGroqClient(GroqConfig{}, nil)
	assert.Error(t, err)
}

func TestNewGroqClient_Defaults(t *testing.T) {
	c, err := NewGroqClient(GroqConfig{APIKey: "k"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://api.groq.com/openai/v1", c.baseURL)
	assert.Equal(t, "llama-3.1-8b-instant", c.Model())
	assert.Equal(t, 30*time.Second, c.timeout)
	assert.Equal(t, AvailabilityTimeout, c.availabilityTimeout)
}
