package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AvailabilityTimeout bounds availability checks so readiness never waits on the
// generation timeout
const AvailabilityTimeout = 5 * time.Second

// GroqConfig configures the hosted OpenAI-compatible backend
type GroqConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Timeout      time.Duration
	RateLimitRPM int
}

// DefaultGroqConfig returns default configuration
func DefaultGroqConfig() GroqConfig {
	return GroqConfig{
		BaseURL:      "https://api.groq.com/openai/v1",
		Model:        "llama-3.1-8b-instant",
		Timeout:      30 * time.Second,
		RateLimitRPM: 30,
	}
}

// GroqClient calls Groq's chat completions API through the OpenAI client
type GroqClient struct {
	client              *openai.Client
	baseURL             string
	model               string
	timeout             time.Duration
	availabilityTimeout time.Duration
	rateLimiter         *rate.Limiter
	logger              *zap.Logger
}

// NewGroqClient creates a Groq client
func NewGroqClient(cfg GroqConfig, logger *zap.Logger) (*GroqClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultGroqConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = defaults.RateLimitRPM
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	// tokens per second = RPM / 60
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), 1)

	return &GroqClient{
		client:              openai.NewClientWithConfig(clientConfig),
		baseURL:             clientConfig.BaseURL,
		model:               cfg.Model,
		timeout:             cfg.Timeout,
		availabilityTimeout: AvailabilityTimeout,
		rateLimiter:         limiter,
		logger:              logger,
	}, nil
}

// Generate sends one chat completion: the system prompt (if any) then the user prompt
func (c *GroqClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", classifyError("groq", c.timeout, fmt.Errorf("rate limit: %w", err))
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	start := time.Now()
	t := float32(opts.Temperature)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: &t,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		c.logger.Error("groq request failed", zap.String("model", c.model), zap.Error(err))
		return "", classifyError("groq", c.timeout, describeAPIError(err))
	}
	if len(resp.Choices) == 0 {
		return "", classifyError("groq", c.timeout, errors.New("empty response"))
	}

	c.logger.Debug("groq completion",
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// IsAvailable reports whether the model listing endpoint answers within AvailabilityTimeout
func (c *GroqClient) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.availabilityTimeout)
	defer cancel()

	if _, err := c.client.ListModels(ctx); err != nil {
		c.logger.Debug("groq unavailable", zap.Error(err))
		return false
	}
	return true
}

// Model returns the configured model name
func (c *GroqClient) Model() string {
	return c.model
}

// describeAPIError adds the HTTP status to errors returned by the API
func describeAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("API error (status %d): %w", apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("API error (status %d): %w", reqErr.HTTPStatusCode, err)
	}
	return err
}
