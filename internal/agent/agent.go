// Package agent builds the service graph from configuration and exposes the
// operator-level actions shared by the CLI and the HTTP API.
package agent

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/config"
	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/ingest"
	"github.com/testforge/qaagent/internal/intelligence"
	"github.com/testforge/qaagent/internal/llm"
	"github.com/testforge/qaagent/internal/observability"
	rediscache "github.com/testforge/qaagent/internal/repository/redis"
	"github.com/testforge/qaagent/internal/resilience"
	"github.com/testforge/qaagent/internal/services/discovery"
	"github.com/testforge/qaagent/internal/services/scriptgen"
	"github.com/testforge/qaagent/internal/services/testdesign"
	"github.com/testforge/qaagent/internal/storage"
)

// Agent owns every long-lived service of the process
type Agent struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Cache     *rediscache.Cache      // nil when Redis is disabled or unreachable
	Store     *storage.ArtifactStore // nil when storage is disabled
	Capturer  *discovery.PageCapturer
	Index     *intelligence.IndexService
	Pipeline  *ingest.Pipeline
	Generator llm.Generator
	TestCases *testdesign.Synthesizer
	Scripts   *scriptgen.Generator

	embeddings *intelligence.EmbeddingService // nil when a custom embedder is injected
}

// Option customizes New
type Option func(*options)

type options struct {
	metrics   *observability.Metrics
	embedder  intelligence.Embedder
	generator llm.Generator
}

// WithMetrics uses m instead of a private metrics registry
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithEmbedder replaces the configured embedding provider
func WithEmbedder(e intelligence.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithGenerator replaces the configured language model backend.
// The circuit breaker and cache are still applied.
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// New constructs the agent. Optional backends (Redis, object storage, the
// browser) degrade to disabled with a warning instead of failing.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &Agent{Config: cfg, Logger: logger, Metrics: o.metrics}
	if a.Metrics == nil {
		a.Metrics = observability.NewMetrics("qaagent", nil)
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		cache, err := rediscache.New(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("Failed to connect to Redis, caching disabled", zap.Error(err))
		} else {
			a.Cache = cache
			redisClient = cache.Client()
			logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	embedder := o.embedder
	if embedder == nil {
		svc, err := intelligence.NewEmbeddingService(intelligence.EmbeddingConfig{
			Provider:     cfg.Embedding.Provider,
			APIKey:       cfg.Embedding.APIKey,
			Model:        cfg.Embedding.Model,
			Dimension:    cfg.Embedding.Dimension,
			BaseURL:      embeddingBaseURL(cfg),
			CacheTTL:     cfg.Embedding.CacheTTL,
			MaxBatchSize: cfg.Embedding.BatchSize,
		}, redisClient, a.Metrics, logger.Named("embeddings"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating embedding service: %w", err)
		}
		embedder = svc
	}
	if svc, ok := embedder.(*intelligence.EmbeddingService); ok {
		a.embeddings = svc
	}

	store := intelligence.NewQdrantClient(intelligence.QdrantConfig{
		BaseURL:    cfg.Qdrant.BaseURL(),
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		Timeout:    cfg.Qdrant.Timeout,
	}, logger.Named("qdrant"))
	a.Index = intelligence.NewIndexService(store, embedder, cfg.Qdrant.UpsertBatchSize, a.Metrics, logger.Named("index"))

	a.Pipeline = ingest.NewPipeline(
		ingest.NewExtractor(logger.Named("extractor")),
		ingest.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap, logger.Named("chunker")),
		a.Index,
		a.Metrics,
		logger.Named("ingest"),
	)

	generator, err := buildGenerator(cfg, o.generator, redisClient, a.Metrics, logger.Named("llm"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Generator = generator

	if checker, ok := llm.Root(generator).(llm.ModelChecker); ok {
		if pulled, err := checker.HasModel(ctx); err != nil {
			logger.Warn("Language model server not reachable", zap.String("backend", cfg.LLM.Backend()), zap.Error(err))
		} else if !pulled {
			logger.Warn("Language model not installed, generation will fail until it is pulled",
				zap.String("model", generator.Model()),
				zap.String("hint", "ollama pull "+generator.Model()),
			)
		}
	}

	if cfg.Storage.Enabled {
		s, err := storage.NewArtifactStore(storage.MinIOConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKey,
			SecretAccessKey: cfg.Storage.SecretKey,
			UseSSL:          cfg.Storage.UseSSL,
			BucketName:      cfg.Storage.Bucket,
			ScriptPrefix:    cfg.Storage.ScriptPath,
		}, logger.Named("storage"))
		if err == nil {
			err = s.EnsureBucket(ctx)
		}
		if err != nil {
			logger.Warn("Artifact storage unavailable, scripts will not be uploaded", zap.Error(err))
		} else {
			a.Store = s
		}
	}

	a.TestCases = testdesign.NewSynthesizer(a.Index, a.Generator, testdesign.Config{}, a.Metrics, logger.Named("testdesign"))

	var artifacts scriptgen.ArtifactStore
	if a.Store != nil {
		artifacts = a.Store
	}
	a.Scripts = scriptgen.NewGenerator(a.Index, a.Generator, artifacts, a.Metrics, logger.Named("scriptgen"))

	if cfg.Capture.Enabled {
		a.Capturer = discovery.NewPageCapturer(discovery.CaptureConfig{
			Headless: cfg.Capture.Headless,
			Timeout:  cfg.Capture.Timeout,
		}, logger.Named("capture"))
	}

	logger.Info("Agent initialized",
		zap.String("llm_backend", llm.Backend(a.Generator)),
		zap.String("llm_model", a.Generator.Model()),
		zap.String("embedding_model", a.Index.EmbeddingModel()),
		zap.String("qdrant", cfg.Qdrant.BaseURL()),
		zap.String("collection", cfg.Qdrant.Collection),
		zap.Bool("redis", a.Cache != nil),
		zap.Bool("storage", a.Store != nil),
		zap.Bool("capture", a.Capturer != nil),
	)
	return a, nil
}

func buildGenerator(cfg *config.Config, base llm.Generator, redisClient *goredis.Client, metrics *observability.Metrics, logger *zap.Logger) (llm.Generator, error) {
	if base == nil {
		g, err := llm.New(llm.Config{
			UseGroq: cfg.LLM.UseGroq,
			Groq: llm.GroqConfig{
				APIKey:       cfg.Groq.APIKey,
				BaseURL:      cfg.Groq.BaseURL,
				Model:        cfg.Groq.Model,
				Timeout:      cfg.Groq.Timeout,
				RateLimitRPM: cfg.Groq.RateLimitRPM,
			},
			Ollama: llm.OllamaConfig{
				BaseURL: cfg.Ollama.BaseURL,
				Model:   cfg.Ollama.Model,
				Timeout: cfg.Ollama.Timeout,
			},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating %s client: %w", cfg.LLM.Backend(), err)
		}
		base = g
	}

	guarded := llm.NewGuardedGenerator(base, resilience.DefaultConfig(cfg.LLM.Backend()), metrics, logger)

	var cache *llm.TokenCache
	if cfg.LLM.CacheEnabled {
		cache = llm.NewTokenCache(llm.TokenCacheConfig{
			RedisEnabled:  redisClient != nil,
			RedisTTL:      cfg.LLM.CacheTTL,
			MemoryMaxSize: cfg.LLM.CacheSize,
			MemoryTTL:     cfg.LLM.CacheTTL,
		}, redisClient, logger)
	}
	return llm.NewCachedGenerator(guarded, cache, metrics, logger), nil
}

// embeddingBaseURL defaults Ollama embeddings to the Ollama server used for generation
func embeddingBaseURL(cfg *config.Config) string {
	if cfg.Embedding.BaseURL != "" {
		return cfg.Embedding.BaseURL
	}
	if cfg.Embedding.Provider == "ollama" || cfg.Embedding.Provider == "" {
		return cfg.Ollama.BaseURL
	}
	return ""
}

// CaptureAndIngest renders url in the browser, stores the markup when storage
// is enabled and indexes it as an HTML document
func (a *Agent) CaptureAndIngest(ctx context.Context, url string) (*discovery.CapturedPage, *ingest.BatchResult, error) {
	if a.Capturer == nil {
		return nil, nil, domain.ErrServiceUnavailable("page capture")
	}

	page, err := a.Capturer.Capture(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	name := discovery.FileName(page.URL)
	if a.Store != nil {
		if uri, err := a.Store.UploadPage(ctx, name, page.HTML); err != nil {
			a.Logger.Warn("Failed to store captured page", zap.String("url", url), zap.Error(err))
		} else {
			a.Logger.Info("Stored captured page", zap.String("uri", uri))
		}
	}

	result, err := a.Pipeline.Ingest(ctx, []ingest.FileInput{{
		Name: name,
		Path: page.URL,
		Type: domain.FileTypeHTML,
		Data: []byte(page.HTML),
	}}, false)
	return page, result, err
}

// Ready reports the health of each dependency by name. A nil map value means healthy.
func (a *Agent) Ready(ctx context.Context) map[string]error {
	checks := map[string]error{
		"qdrant": a.Index.Health(ctx),
	}
	if !a.Generator.IsAvailable(ctx) {
		checks["llm"] = domain.ErrModelUnreachable(llm.Backend(a.Generator), errors.New("backend not available"))
	} else {
		checks["llm"] = nil
		if checker, ok := llm.Root(a.Generator).(llm.ModelChecker); ok {
			checks["llm_model"] = a.checkModel(ctx, checker)
		}
	}
	if a.Cache != nil {
		checks["redis"] = a.Cache.Health(ctx)
	}
	if a.Store != nil {
		checks["storage"] = a.Store.Health(ctx)
	}
	return checks
}

func (a *Agent) checkModel(ctx context.Context, checker llm.ModelChecker) error {
	pulled, err := checker.HasModel(ctx)
	if err != nil {
		return err
	}
	if !pulled {
		model := a.Generator.Model()
		return domain.ErrModelUnreachable(llm.Backend(a.Generator),
			fmt.Errorf("model %q not found, run: ollama pull %s", model, model))
	}
	return nil
}

// CacheStats reports the completion cache and, when the built-in embedding
// service is in use, its in-memory vector cache
type CacheStats struct {
	LLM        llm.CacheStats         `json:"llm"`
	Embeddings map[string]interface{} `json:"embeddings,omitempty"`
}

// CacheStats returns the current cache counters
func (a *Agent) CacheStats() CacheStats {
	var stats CacheStats
	if cached, ok := a.Generator.(*llm.CachedGenerator); ok {
		stats.LLM = cached.GetCacheStats()
	}
	if a.embeddings != nil {
		stats.Embeddings = a.embeddings.GetCacheStats()
	}
	return stats
}

// ClearCaches drops cached completions and embeddings
func (a *Agent) ClearCaches(ctx context.Context) error {
	if a.embeddings != nil {
		a.embeddings.ClearCache()
	}
	if cached, ok := a.Generator.(*llm.CachedGenerator); ok {
		return cached.ClearCache(ctx)
	}
	return nil
}

// Close releases the browser and the Redis connection
func (a *Agent) Close() error {
	var errs []error
	if a.Capturer != nil {
		errs = append(errs, a.Capturer.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	return errors.Join(errs...)
}
