package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// OllamaConfig configures the locally hosted backend
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultOllamaConfig returns default configuration
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL: "http://localhost:11434",
		Model:   "llama2",
		Timeout: 120 * time.Second,
	}
}

// OllamaClient calls a local Ollama server
type OllamaClient struct {
	client              *ollama.Client
	model               string
	timeout             time.Duration
	availabilityTimeout time.Duration
	logger              *zap.Logger
}

// NewOllamaClient creates an Ollama client
func NewOllamaClient(cfg OllamaConfig, logger *zap.Logger) (*OllamaClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultOllamaConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}

	parsedURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	return &OllamaClient{
		client:              ollama.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout}),
		model:               cfg.Model,
		timeout:             cfg.Timeout,
		availabilityTimeout: AvailabilityTimeout,
		logger:              logger,
	}, nil
}

// Generate runs a non-streaming completion
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	stream := false
	options := map[string]interface{}{
		"temperature": opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	start := time.Now()
	var out strings.Builder
	err := c.client.Generate(ctx, &ollama.GenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		System:  opts.System,
		Stream:  &stream,
		Options: options,
	}, func(resp ollama.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		c.logger.Error("ollama request failed", zap.String("model", c.model), zap.Error(err))
		return "", classifyError("ollama", c.timeout, err)
	}

	c.logger.Debug("ollama completion",
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("chars", out.Len()),
	)
	return out.String(), nil
}

// IsAvailable reports whether the server answers the model listing within AvailabilityTimeout
func (c *OllamaClient) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.availabilityTimeout)
	defer cancel()

	_, err := c.client.List(ctx)
	if err != nil {
		c.logger.Debug("ollama unavailable", zap.Error(err))
	}
	return err == nil
}

// HasModel reports whether the configured model has been pulled. Tags are
// matched exactly or by substring, so "llama2" matches "llama2:latest".
func (c *OllamaClient) HasModel(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.availabilityTimeout)
	defer cancel()

	list, err := c.client.List(ctx)
	if err != nil {
		return false, classifyError("ollama", c.availabilityTimeout, err)
	}

	for _, m := range list.Models {
		if m.Name == c.model || strings.Contains(m.Name, c.model) {
			return true, nil
		}
	}

	c.logger.Warn("model not found in ollama",
		zap.String("model", c.model),
		zap.String("hint", "ollama pull "+c.model),
	)
	return false, nil
}

// Model returns the configured model name
func (c *OllamaClient) Model() string {
	return c.model
}
