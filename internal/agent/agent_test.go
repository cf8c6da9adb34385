package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/testforge/qaagent/internal/config"
	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/intelligence"
	"github.com/testforge/qaagent/internal/llm"
	"github.com/testforge/qaagent/internal/observability"
)

type stubGenerator struct {
	available bool
}

func (s *stubGenerator) Generate(context.Context, string, llm.GenerateOptions) (string, error) {
	return "[]", nil
}

func (s *stubGenerator) IsAvailable(context.Context) bool { return s.available }
func (s *stubGenerator) Model() string                    { return "stub" }

// stubOllama reports whether its model is installed
type stubOllama struct {
	stubGenerator
	pulled bool
	err    error
}

func (s *stubOllama) HasModel(context.Context) (bool, error) { return s.pulled, s.err }

func testConfig(qdrantURL string) *config.Config {
	return &config.Config{
		Env: config.EnvDevelopment,
		LLM: config.LLMConfig{CacheEnabled: true, CacheTTL: time.Hour, CacheSize: 10},
		Ollama: config.OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama2",
			Timeout: time.Second,
		},
		Qdrant: config.QdrantConfig{
			URL:        qdrantURL,
			UseCloud:   true,
			Collection: "qa_agent_docs",
			Timeout:    time.Second,
		},
		Embedding: config.EmbeddingConfig{Provider: "hash", Dimension: 64},
		Chunking:  config.ChunkingConfig{Size: 500, Overlap: 50},
	}
}

func healthyQdrant(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.Write([]byte("healthz check passed"))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_WiresServices(t *testing.T) {
	srv := healthyQdrant(t)

	a, err := New(context.Background(), testConfig(srv.URL), zaptest.NewLogger(t), WithGenerator(&stubGenerator{available: true}))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Index)
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.TestCases)
	assert.NotNil(t, a.Scripts)
	assert.NotNil(t, a.Metrics)
	assert.Nil(t, a.Cache)
	assert.Nil(t, a.Store)
	assert.Nil(t, a.Capturer)

	assert.Equal(t, "hash", a.Index.EmbeddingModel())
	assert.Equal(t, "stub", a.Generator.Model())

	_, isCached := a.Generator.(*llm.CachedGenerator)
	assert.True(t, isCached)
}

func TestNew_DefaultBackendIsOllama(t *testing.T) {
	srv := healthyQdrant(t)

	a, err := New(context.Background(), testConfig(srv.URL), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "ollama", llm.Backend(a.Generator))
	assert.Equal(t, "llama2", a.Generator.Model())
}

func TestNew_GroqWithoutKeyFails(t *testing.T) {
	cfg := testConfig("http://localhost:6333")
	cfg.LLM.UseGroq = true

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNew_UnknownEmbeddingProviderFails(t *testing.T) {
	cfg := testConfig("http://localhost:6333")
	cfg.Embedding.Provider = "word2vec"

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestReady(t *testing.T) {
	srv := healthyQdrant(t)

	tests := []struct {
		name      string
		available bool
		wantLLM   bool
	}{
		{"all healthy", true, true},
		{"model down", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(context.Background(), testConfig(srv.URL), zaptest.NewLogger(t), WithGenerator(&stubGenerator{available: tt.available}))
			require.NoError(t, err)
			defer a.Close()

			checks := a.Ready(context.Background())
			assert.NoError(t, checks["qdrant"])
			if tt.wantLLM {
				assert.NoError(t, checks["llm"])
			} else {
				assert.True(t, errors.Is(checks["llm"], domain.ErrModelUnreachableSentinel))
			}
			_, hasRedis := checks["redis"]
			assert.False(t, hasRedis)
		})
	}
}

func TestCaptureAndIngest_Disabled(t *testing.T) {
	srv := healthyQdrant(t)

	a, err := New(context.Background(), testConfig(srv.URL), zaptest.NewLogger(t), WithGenerator(&stubGenerator{available: true}))
	require.NoError(t, err)
	defer a.Close()

	_, _, err = a.CaptureAndIngest(context.Background(), "https://shop.example.com/checkout")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeServiceUnavail, domain.GetErrorCode(err))
}

func TestEmbeddingBaseURL(t *testing.T) {
	cfg := testConfig("")
	cfg.Embedding.Provider = "ollama"
	assert.Equal(t, "http://localhost:11434", embeddingBaseURL(cfg))

	cfg.Embedding.BaseURL = "http://embedder:11434"
	assert.Equal(t, "http://embedder:11434", embeddingBaseURL(cfg))

	cfg.Embedding.BaseURL = ""
	cfg.Embedding.Provider = "openai"
	assert.Empty(t, embeddingBaseURL(cfg))
}

func TestNew_Options(t *testing.T) {
	srv := healthyQdrant(t)
	metrics := observability.NewMetrics("qaagent_agent_test", nil)

	cfg := testConfig(srv.URL)
	cfg.Embedding.Provider = "not-used"

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t),
		WithMetrics(metrics),
		WithEmbedder(intelligence.NewHashEmbedder(32)),
		WithGenerator(&stubGenerator{}),
	)
	require.NoError(t, err)
	defer a.Close()

	assert.Same(t, metrics, a.Metrics)
	assert.Equal(t, "hash", a.Index.EmbeddingModel())
}

func TestReady_ModelInstalled(t *testing.T) {
	srv := healthyQdrant(t)

	tests := []struct {
		name    string
		backend *stubOllama
		wantErr bool
	}{
		{"pulled", &stubOllama{stubGenerator: stubGenerator{available: true}, pulled: true}, false},
		{"not pulled", &stubOllama{stubGenerator: stubGenerator{available: true}}, true},
		{"tags endpoint failing", &stubOllama{stubGenerator: stubGenerator{available: true}, err: domain.ErrModelUnreachable("ollama", errors.New("refused"))}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(context.Background(), testConfig(srv.URL), zaptest.NewLogger(t), WithGenerator(tt.backend))
			require.NoError(t, err)
			defer a.Close()

			checks := a.Ready(context.Background())
			require.Contains(t, checks, "llm_model")
			if tt.wantErr {
				assert.True(t, errors.Is(checks["llm_model"], domain.ErrModelUnreachableSentinel))
			} else {
				assert.NoError(t, checks["llm_model"])
			}
		})
	}
}

func TestReady_NoModelCheckForOtherBackends(t *testing.T) {
	srv := healthyQdrant(t)

	a, err := New(context.Background(), testConfig(srv.URL), zaptest.NewLogger(t), WithGenerator(&stubGenerator{available: true}))
	require.NoError(t, err)
	defer a.Close()

	assert.NotContains(t, a.Ready(context.Background()), "llm_model")
}

func TestCacheStatsAndClear(t *testing.T) {
	srv := healthyQdrant(t)
	ctx := context.Background()

	a, err := New(ctx, testConfig(srv.URL), zaptest.NewLogger(t), WithGenerator(&stubGenerator{available: true}))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Index.Embed(ctx, []string{"checkout page", "discount code"})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = a.Generator.Generate(ctx, "Generate test cases", llm.GenerateOptions{})
		require.NoError(t, err)
	}

	stats := a.CacheStats()
	assert.Equal(t, int64(1), stats.LLM.MemoryHits)
	assert.Equal(t, int64(1), stats.LLM.Misses)
	require.NotNil(t, stats.Embeddings)
	assert.Equal(t, 2, stats.Embeddings["memory_cache_size"])

	require.NoError(t, a.ClearCaches(ctx))
	assert.Equal(t, 0, a.CacheStats().Embeddings["memory_cache_size"])

	_, err = a.Generator.Generate(ctx, "Generate test cases", llm.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.CacheStats().LLM.Misses)
}

func TestCacheStats_InjectedEmbedder(t *testing.T) {
	srv := healthyQdrant(t)

	a, err := New(context.Background(), testConfig(srv.URL), zaptest.NewLogger(t),
		WithEmbedder(intelligence.NewHashEmbedder(32)),
		WithGenerator(&stubGenerator{available: true}),
	)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.CacheStats().Embeddings)
	assert.NoError(t, a.ClearCaches(context.Background()))
}
