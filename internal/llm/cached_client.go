package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/observability"
)

// CachedGenerator serves repeated completions from a TokenCache and records
// request metrics for the wrapped backend
type CachedGenerator struct {
	next    Generator
	cache   *TokenCache
	backend string
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCachedGenerator wraps next. A nil cache disables caching but keeps metrics.
func NewCachedGenerator(next Generator, cache *TokenCache, metrics *observability.Metrics, logger *zap.Logger) *CachedGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedGenerator{
		next:    next,
		cache:   cache,
		backend: Backend(next),
		metrics: metrics,
		logger:  logger,
	}
}

// Generate returns a cached response when one exists, otherwise calls the backend
func (c *CachedGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var key string
	if c.cache != nil {
		key = c.cache.CacheKey(prompt, c.next.Model(), opts)
		if response, tokens, found := c.cache.Get(ctx, key); found {
			c.metrics.RecordLLMCache(true)
			c.logger.Debug("cache hit",
				zap.String("key", key[:16]),
				zap.Int("tokens", tokens.InputTokens+tokens.OutputTokens),
			)
			return response, nil
		}
		c.metrics.RecordLLMCache(false)
	}

	start := time.Now()
	response, err := c.next.Generate(ctx, prompt, opts)
	duration := time.Since(start)

	inputTokens := estimateTokens(prompt) + estimateTokens(opts.System)
	if err != nil {
		c.metrics.RecordLLMRequest(c.backend, c.next.Model(), "failure", duration, inputTokens, 0)
		return "", err
	}

	outputTokens := estimateTokens(response)
	c.metrics.RecordLLMRequest(c.backend, c.next.Model(), "success", duration, inputTokens, outputTokens)

	if c.cache != nil {
		c.cache.Set(ctx, key, response, TokenUsage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
		})
	}

	c.logger.Debug("completion finished",
		zap.String("backend", c.backend),
		zap.Duration("duration", duration),
		zap.Int("input_tokens", inputTokens),
		zap.Int("output_tokens", outputTokens),
	)
	return response, nil
}

// IsAvailable delegates to the wrapped backend
func (c *CachedGenerator) IsAvailable(ctx context.Context) bool {
	return c.next.IsAvailable(ctx)
}

// Model delegates to the wrapped backend
func (c *CachedGenerator) Model() string {
	return c.next.Model()
}

// Unwrap returns the wrapped backend
func (c *CachedGenerator) Unwrap() Generator {
	return c.next
}

// GetCacheStats returns cache statistics
func (c *CachedGenerator) GetCacheStats() CacheStats {
	if c.cache == nil {
		return CacheStats{}
	}
	return c.cache.GetStats()
}

// ClearCache clears all cached responses
func (c *CachedGenerator) ClearCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear(ctx)
}
