package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestQdrantConfig_BaseURL(t *testing.T) {
	tests := []struct {
		name     string
		config   QdrantConfig
		expected string
	}{
		{
			name:     "local host and port",
			config:   QdrantConfig{Host: "localhost", Port: 6333},
			expected: "http://localhost:6333",
		},
		{
			name:     "cloud url",
			config:   QdrantConfig{UseCloud: true, URL: "https://xyz.cloud.qdrant.io:6333/", Host: "localhost", Port: 6333},
			expected: "https://xyz.cloud.qdrant.io:6333",
		},
		{
			name:     "cloud without url falls back to host",
			config:   QdrantConfig{UseCloud: true, Host: "qdrant", Port: 7000},
			expected: "http://qdrant:7000",
		},
		{
			name:     "url ignored when cloud disabled",
			config:   QdrantConfig{URL: "https://ignored", Host: "db", Port: 6333},
			expected: "http://db:6333",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.BaseURL(); got != tt.expected {
				t.Errorf("BaseURL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{
		Host: "redis.example.com",
		Port: 6380,
	}

	if got := cfg.Addr(); got != "redis.example.com:6380" {
		t.Errorf("Addr() = %v, want redis.example.com:6380", got)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 9090}
	if got := cfg.Addr(); got != "127.0.0.1:9090" {
		t.Errorf("Addr() = %v, want 127.0.0.1:9090", got)
	}
}

func TestLLMConfig_Backend(t *testing.T) {
	if got := (LLMConfig{UseGroq: true}).Backend(); got != "groq" {
		t.Errorf("Backend() = %v, want groq", got)
	}
	if got := (LLMConfig{}).Backend(); got != "ollama" {
		t.Errorf("Backend() = %v, want ollama", got)
	}
}

func TestConfig_GetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		debug    bool
		logLevel string
		expected string
	}{
		{
			name:     "debug mode overrides",
			debug:    true,
			logLevel: "info",
			expected: "debug",
		},
		{
			name:     "normal mode uses log level",
			debug:    false,
			logLevel: "warn",
			expected: "warn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Debug: tt.debug, LogLevel: tt.logLevel}
			if got := cfg.GetLogLevel(); got != tt.expected {
				t.Errorf("GetLogLevel() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Env:       EnvDevelopment,
		Chunking:  ChunkingConfig{Size: 500, Overlap: 50},
		Embedding: EmbeddingConfig{Provider: "ollama"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid ollama config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "groq without api key",
			mutate: func(c *Config) {
				c.LLM.UseGroq = true
			},
			wantErr: true,
		},
		{
			name: "groq with api key",
			mutate: func(c *Config) {
				c.LLM.UseGroq = true
				c.Groq.APIKey = "gsk_test"
			},
			wantErr: false,
		},
		{
			name: "cloud qdrant without url",
			mutate: func(c *Config) {
				c.Qdrant.UseCloud = true
			},
			wantErr: true,
		},
		{
			name: "overlap not smaller than size",
			mutate: func(c *Config) {
				c.Chunking.Overlap = 500
			},
			wantErr: true,
		},
		{
			name: "zero chunk size",
			mutate: func(c *Config) {
				c.Chunking.Size = 0
			},
			wantErr: true,
		},
		{
			name: "openai embeddings without key",
			mutate: func(c *Config) {
				c.Embedding.Provider = "openai"
			},
			wantErr: true,
		},
		{
			name: "unknown embedding provider",
			mutate: func(c *Config) {
				c.Embedding.Provider = "sentence-transformers"
			},
			wantErr: true,
		},
		{
			name: "hash embeddings",
			mutate: func(c *Config) {
				c.Embedding.Provider = "hash"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("USE_GROQ", "false")
	t.Setenv("EMBEDDING_PROVIDER", "ollama")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Chunking.Size != 500 || cfg.Chunking.Overlap != 50 {
		t.Errorf("chunking = %+v, want size 500 overlap 50", cfg.Chunking)
	}
	if cfg.Qdrant.Collection != "qa_agent_docs" {
		t.Errorf("Qdrant.Collection = %v, want qa_agent_docs", cfg.Qdrant.Collection)
	}
	if cfg.Ollama.Model != "llama2" {
		t.Errorf("Ollama.Model = %v, want llama2", cfg.Ollama.Model)
	}
	if cfg.Groq.Model != "llama-3.1-8b-instant" {
		t.Errorf("Groq.Model = %v, want llama-3.1-8b-instant", cfg.Groq.Model)
	}
	if cfg.Groq.Timeout.Seconds() != 30 || cfg.Ollama.Timeout.Seconds() != 120 {
		t.Errorf("timeouts = %v / %v, want 30s / 120s", cfg.Groq.Timeout, cfg.Ollama.Timeout)
	}
	if cfg.Qdrant.UpsertBatchSize != 100 {
		t.Errorf("UpsertBatchSize = %d, want 100", cfg.Qdrant.UpsertBatchSize)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "QDRANT_COLLECTION_NAME=from_dotenv\nCHUNK_SIZE=800\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing .env: %v", err)
	}

	// godotenv never overrides variables that are already set.
	t.Setenv("QDRANT_COLLECTION_NAME", "")
	os.Unsetenv("QDRANT_COLLECTION_NAME")
	t.Setenv("CHUNK_SIZE", "")
	os.Unsetenv("CHUNK_SIZE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Qdrant.Collection != "from_dotenv" {
		t.Errorf("Qdrant.Collection = %v, want from_dotenv", cfg.Qdrant.Collection)
	}
	if cfg.Chunking.Size != 800 {
		t.Errorf("Chunking.Size = %d, want 800", cfg.Chunking.Size)
	}
}

func TestLoad_InvalidGroq(t *testing.T) {
	t.Setenv("USE_GROQ", "true")
	t.Setenv("GROQ_API_KEY", "")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("Load() should fail when USE_GROQ is set without GROQ_API_KEY")
	}
}

func TestEnvironmentConstants(t *testing.T) {
	if EnvDevelopment != "development" {
		t.Errorf("EnvDevelopment = %v, want development", EnvDevelopment)
	}
	if EnvProduction != "production" {
		t.Errorf("EnvProduction = %v, want production", EnvProduction)
	}

	for _, env := range []Environment{EnvDevelopment, EnvProduction} {
		cfg := &Config{Env: env}
		if cfg.IsDevelopment() != (env == EnvDevelopment) {
			t.Errorf("IsDevelopment() = %v for %s", cfg.IsDevelopment(), env)
		}
		if cfg.IsProduction() != (env == EnvProduction) {
			t.Errorf("IsProduction() = %v for %s", cfg.IsProduction(), env)
		}
	}
}
