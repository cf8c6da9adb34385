package intelligence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"
	ollama "github.com/ollama/ollama/api"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/observability"
)

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Provider     string // "ollama", "openai", "hash"
	APIKey       string
	Model        string
	Dimension    int
	BaseURL      string
	CacheTTL     time.Duration
	MaxBatchSize int
	Timeout      time.Duration
}

// DefaultEmbeddingConfig returns default embedding configuration
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:     "ollama",
		Model:        "all-minilm",
		Dimension:    DefaultHashDimension,
		BaseURL:      "http://localhost:11434",
		CacheTTL:     24 * time.Hour,
		MaxBatchSize: 64,
		Timeout:      120 * time.Second,
	}
}

// EmbeddingProvider computes vectors for a batch of texts, preserving order
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingService generates and caches embeddings
type EmbeddingService struct {
	config   EmbeddingConfig
	provider EmbeddingProvider
	redis    *redis.Client
	metrics  *observability.Metrics
	logger   *zap.Logger

	// In-memory cache
	cache    map[string][]float32
	cacheMu  sync.RWMutex
	cacheMax int
}

// NewEmbeddingService creates an embedding service for the configured provider.
// redisClient may be nil.
func NewEmbeddingService(config EmbeddingConfig, redisClient *redis.Client, metrics *observability.Metrics, logger *zap.Logger) (*EmbeddingService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 64
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}

	var provider EmbeddingProvider
	switch config.Provider {
	case "ollama", "":
		p, err := newOllamaEmbeddings(config)
		if err != nil {
			return nil, err
		}
		provider = p
	case "openai":
		provider = newOpenAIEmbeddings(config)
	case "hash":
		provider = NewHashEmbedder(config.Dimension)
		config.Model = "hash"
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", config.Provider)
	}

	return newEmbeddingService(config, provider, redisClient, metrics, logger), nil
}

func newEmbeddingService(config EmbeddingConfig, provider EmbeddingProvider, redisClient *redis.Client, metrics *observability.Metrics, logger *zap.Logger) *EmbeddingService {
	return &EmbeddingService{
		config:   config,
		provider: provider,
		redis:    redisClient,
		metrics:  metrics,
		logger:   logger,
		cache:    make(map[string][]float32),
		cacheMax: 10000,
	}
}

// Model returns the embedding model name
func (es *EmbeddingService) Model() string {
	return es.config.Model
}

// Embed generates an embedding for text
func (es *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := es.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
// Any provider failure fails the whole call with EMBEDDING_FAILED.
func (es *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0)
	uncachedTexts := make([]string, 0)

	for i, text := range texts {
		if embedding, ok := es.lookup(ctx, es.cacheKey(text)); ok {
			results[i] = embedding
			continue
		}
		es.metrics.RecordEmbeddingCache("miss")
		uncachedIndices = append(uncachedIndices, i)
		uncachedTexts = append(uncachedTexts, text)
	}

	// Generate embeddings for uncached texts in batches
	for i := 0; i < len(uncachedTexts); i += es.config.MaxBatchSize {
		end := i + es.config.MaxBatchSize
		if end > len(uncachedTexts) {
			end = len(uncachedTexts)
		}

		batchTexts := uncachedTexts[i:end]
		batchIndices := uncachedIndices[i:end]

		embeddings, err := es.provider.EmbedBatch(ctx, batchTexts)
		if err != nil {
			es.logger.Error("embedding batch failed",
				zap.String("model", es.config.Model),
				zap.Int("batch_size", len(batchTexts)),
				zap.Error(err),
			)
			return nil, domain.ErrEmbeddingFailed(err)
		}
		if len(embeddings) != len(batchTexts) {
			return nil, domain.ErrEmbeddingFailed(fmt.Errorf("expected %d embeddings, got %d", len(batchTexts), len(embeddings)))
		}

		for j, embedding := range embeddings {
			if len(embedding) == 0 {
				return nil, domain.ErrEmbeddingFailed(fmt.Errorf("empty embedding for input %d", batchIndices[j]))
			}
			originalIdx := batchIndices[j]
			results[originalIdx] = embedding
			es.store(ctx, es.cacheKey(texts[originalIdx]), embedding)
		}
	}

	return results, nil
}

// GetCacheStats returns cache statistics
func (es *EmbeddingService) GetCacheStats() map[string]interface{} {
	es.cacheMu.RLock()
	defer es.cacheMu.RUnlock()

	return map[string]interface{}{
		"memory_cache_size": len(es.cache),
		"memory_cache_max":  es.cacheMax,
		"redis_enabled":     es.redis != nil,
	}
}

// ClearCache clears the in-memory cache
func (es *EmbeddingService) ClearCache() {
	es.cacheMu.Lock()
	defer es.cacheMu.Unlock()
	es.cache = make(map[string][]float32)
}

// Private methods

func (es *EmbeddingService) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(es.config.Provider + "\x00" + es.config.Model + "\x00" + text))
	return hex.EncodeToString(hash[:16])
}

func (es *EmbeddingService) lookup(ctx context.Context, key string) ([]float32, bool) {
	es.cacheMu.RLock()
	embedding, ok := es.cache[key]
	es.cacheMu.RUnlock()
	if ok {
		es.metrics.RecordEmbeddingCache("memory")
		return embedding, true
	}

	if es.redis == nil {
		return nil, false
	}
	cached, err := es.redis.Get(ctx, "emb:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal(cached, &embedding); err != nil {
		return nil, false
	}
	es.setMemoryCache(key, embedding)
	es.metrics.RecordEmbeddingCache("redis")
	return embedding, true
}

func (es *EmbeddingService) store(ctx context.Context, key string, embedding []float32) {
	es.setMemoryCache(key, embedding)

	if es.redis != nil {
		data, _ := json.Marshal(embedding)
		if err := es.redis.Set(ctx, "emb:"+key, data, es.config.CacheTTL).Err(); err != nil {
			es.logger.Debug("caching embedding in redis failed", zap.Error(err))
		}
	}
}

func (es *EmbeddingService) setMemoryCache(key string, embedding []float32) {
	es.cacheMu.Lock()
	defer es.cacheMu.Unlock()

	// Evict oldest entries if cache is full
	if len(es.cache) >= es.cacheMax {
		// Simple eviction: remove first 10%
		count := 0
		for k := range es.cache {
			delete(es.cache, k)
			count++
			if count >= es.cacheMax/10 {
				break
			}
		}
	}

	es.cache[key] = embedding
}

// ollamaEmbeddings calls a local Ollama server's /api/embed endpoint
type ollamaEmbeddings struct {
	client *ollama.Client
	model  string
}

func newOllamaEmbeddings(config EmbeddingConfig) (*ollamaEmbeddings, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding base URL: %w", err)
	}

	return &ollamaEmbeddings{
		client: ollama.NewClient(parsedURL, &http.Client{Timeout: config.Timeout}),
		model:  config.Model,
	}, nil
}

func (o *ollamaEmbeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embed(ctx, &ollama.EmbedRequest{
		Model: o.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("getting embeddings from ollama: %w", err)
	}
	return resp.Embeddings, nil
}

// openAIEmbeddings calls an OpenAI-compatible /embeddings endpoint
type openAIEmbeddings struct {
	client *openai.Client
	model  string
}

func newOpenAIEmbeddings(config EmbeddingConfig) *openAIEmbeddings {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &openAIEmbeddings{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
	}
}

func (o *openAIEmbeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}

	// Sort by index to maintain order
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}

	return embeddings, nil
}

// CosineSimilarity calculates cosine similarity between two embeddings
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}
