package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "llm:"

// TokenCacheConfig holds cache configuration
type TokenCacheConfig struct {
	RedisEnabled bool
	RedisTTL     time.Duration

	MemoryMaxSize int
	MemoryTTL     time.Duration
}

// DefaultTokenCacheConfig returns default cache configuration
func DefaultTokenCacheConfig() TokenCacheConfig {
	return TokenCacheConfig{
		RedisEnabled:  true,
		RedisTTL:      24 * time.Hour,
		MemoryMaxSize: 500,
		MemoryTTL:     1 * time.Hour,
	}
}

// TokenCache is a two-layer response cache: memory first, then Redis
type TokenCache struct {
	config TokenCacheConfig
	redis  *redis.Client
	logger *zap.Logger

	mu       sync.Mutex
	memCache map[string]*tokenCacheEntry
	order    []string // insertion order for eviction

	stats CacheStats
}

type tokenCacheEntry struct {
	response  string
	tokens    TokenUsage
	createdAt time.Time
}

// TokenUsage is an estimate of the tokens a response cost
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CacheStats tracks cache statistics
type CacheStats struct {
	MemoryHits    int64   `json:"memory_hits"`
	RedisHits     int64   `json:"redis_hits"`
	Misses        int64   `json:"misses"`
	TotalRequests int64   `json:"total_requests"`
	TokensSaved   int64   `json:"tokens_saved"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
}

type redisEntry struct {
	Response string     `json:"response"`
	Tokens   TokenUsage `json:"tokens"`
}

// NewTokenCache creates a token cache. redisClient may be nil.
func NewTokenCache(config TokenCacheConfig, redisClient *redis.Client, logger *zap.Logger) *TokenCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MemoryMaxSize <= 0 {
		config.MemoryMaxSize = DefaultTokenCacheConfig().MemoryMaxSize
	}
	if config.MemoryTTL <= 0 {
		config.MemoryTTL = DefaultTokenCacheConfig().MemoryTTL
	}

	return &TokenCache{
		config:   config,
		redis:    redisClient,
		logger:   logger,
		memCache: make(map[string]*tokenCacheEntry),
	}
}

// CacheKey hashes everything that affects the output of a completion
func (tc *TokenCache) CacheKey(prompt, model string, opts GenerateOptions) string {
	data, _ := json.Marshal(map[string]interface{}{
		"prompt":      prompt,
		"model":       model,
		"system":      opts.System,
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxTokens,
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Get retrieves a cached response
func (tc *TokenCache) Get(ctx context.Context, key string) (string, *TokenUsage, bool) {
	tc.mu.Lock()
	tc.stats.TotalRequests++
	if entry, ok := tc.memCache[key]; ok && time.Since(entry.createdAt) < tc.config.MemoryTTL {
		tc.stats.MemoryHits++
		tc.stats.TokensSaved += int64(entry.tokens.InputTokens + entry.tokens.OutputTokens)
		tc.mu.Unlock()
		return entry.response, &entry.tokens, true
	}
	tc.mu.Unlock()

	if tc.redisEnabled() {
		data, err := tc.redis.Get(ctx, redisKeyPrefix+key).Bytes()
		if err == nil {
			var cached redisEntry
			if err := json.Unmarshal(data, &cached); err == nil {
				tc.setMemory(key, cached.Response, cached.Tokens)

				tc.mu.Lock()
				tc.stats.RedisHits++
				tc.stats.TokensSaved += int64(cached.Tokens.InputTokens + cached.Tokens.OutputTokens)
				tc.mu.Unlock()
				return cached.Response, &cached.Tokens, true
			}
		} else if err != redis.Nil {
			tc.logger.Debug("redis cache read failed", zap.Error(err))
		}
	}

	tc.mu.Lock()
	tc.stats.Misses++
	tc.mu.Unlock()
	return "", nil, false
}

// Set stores a response in both layers
func (tc *TokenCache) Set(ctx context.Context, key, response string, tokens TokenUsage) {
	tc.setMemory(key, response, tokens)

	if tc.redisEnabled() {
		data, _ := json.Marshal(redisEntry{Response: response, Tokens: tokens})
		if err := tc.redis.Set(ctx, redisKeyPrefix+key, data, tc.config.RedisTTL).Err(); err != nil {
			tc.logger.Debug("redis cache write failed", zap.Error(err))
		}
	}
}

// GetStats returns cache statistics
func (tc *TokenCache) GetStats() CacheStats {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	stats := tc.stats
	if stats.TotalRequests > 0 {
		stats.CacheHitRate = float64(stats.MemoryHits+stats.RedisHits) / float64(stats.TotalRequests)
	}
	return stats
}

// Clear empties the memory layer and deletes llm:* keys from Redis
func (tc *TokenCache) Clear(ctx context.Context) error {
	tc.mu.Lock()
	tc.memCache = make(map[string]*tokenCacheEntry)
	tc.order = nil
	tc.mu.Unlock()

	if tc.redisEnabled() {
		iter := tc.redis.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			tc.redis.Del(ctx, iter.Val())
		}
		return iter.Err()
	}
	return nil
}

// Len returns the number of entries in the memory layer
func (tc *TokenCache) Len() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.memCache)
}

func (tc *TokenCache) redisEnabled() bool {
	return tc.config.RedisEnabled && tc.redis != nil
}

func (tc *TokenCache) setMemory(key, response string, tokens TokenUsage) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, exists := tc.memCache[key]; !exists {
		if len(tc.memCache) >= tc.config.MemoryMaxSize {
			tc.evictOldest()
		}
		tc.order = append(tc.order, key)
	}

	tc.memCache[key] = &tokenCacheEntry{
		response:  response,
		tokens:    tokens,
		createdAt: time.Now(),
	}
}

// evictOldest drops the oldest tenth of the memory layer. Callers hold mu.
func (tc *TokenCache) evictOldest() {
	toRemove := tc.config.MemoryMaxSize / 10
	if toRemove < 1 {
		toRemove = 1
	}

	for i := 0; i < toRemove && len(tc.order) > 0; i++ {
		delete(tc.memCache, tc.order[0])
		tc.order = tc.order[1:]
	}
}
