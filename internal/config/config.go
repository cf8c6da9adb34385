package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Env      Environment `envconfig:"ENV" default:"development"`
	LogLevel string      `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool        `envconfig:"DEBUG_MODE" default:"false"`

	App       AppConfig
	Server    ServerConfig
	LLM       LLMConfig
	Groq      GroqConfig
	Ollama    OllamaConfig
	Qdrant    QdrantConfig
	Embedding EmbeddingConfig
	Chunking  ChunkingConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Capture   CaptureConfig
	Security  SecurityConfig
}

// AppConfig holds application metadata
type AppConfig struct {
	Title   string `envconfig:"APP_TITLE" default:"Autonomous QA Agent"`
	Version string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"180s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxUploadSize   int64         `envconfig:"SERVER_MAX_UPLOAD_SIZE" default:"52428800"` // 50MB
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig selects the language model backend and cross-cutting options
type LLMConfig struct {
	UseGroq      bool          `envconfig:"USE_GROQ" default:"false"`
	CacheEnabled bool          `envconfig:"LLM_CACHE_ENABLED" default:"false"`
	CacheTTL     time.Duration `envconfig:"LLM_CACHE_TTL" default:"24h"`
	CacheSize    int           `envconfig:"LLM_CACHE_SIZE" default:"500"`
}

// Backend returns the name of the selected backend
func (c LLMConfig) Backend() string {
	if c.UseGroq {
		return "groq"
	}
	return "ollama"
}

// GroqConfig holds settings for the hosted chat-completions backend
type GroqConfig struct {
	APIKey       string        `envconfig:"GROQ_API_KEY" default:""`
	Model        string        `envconfig:"GROQ_MODEL" default:"llama-3.1-8b-instant"`
	BaseURL      string        `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`
	Timeout      time.Duration `envconfig:"GROQ_TIMEOUT" default:"30s"`
	RateLimitRPM int           `envconfig:"GROQ_RATE_LIMIT_RPM" default:"30"`
}

// OllamaConfig holds settings for the locally hosted backend
type OllamaConfig struct {
	BaseURL string        `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	Model   string        `envconfig:"OLLAMA_MODEL" default:"llama2"`
	Timeout time.Duration `envconfig:"OLLAMA_TIMEOUT" default:"120s"`
}

// QdrantConfig holds vector store settings
type QdrantConfig struct {
	URL             string        `envconfig:"QDRANT_URL" default:""`
	APIKey          string        `envconfig:"QDRANT_API_KEY" default:""`
	Host            string        `envconfig:"QDRANT_HOST" default:"localhost"`
	Port            int           `envconfig:"QDRANT_PORT" default:"6333"`
	Collection      string        `envconfig:"QDRANT_COLLECTION_NAME" default:"qa_agent_docs"`
	UseCloud        bool          `envconfig:"QDRANT_USE_CLOUD" default:"false"`
	Timeout         time.Duration `envconfig:"QDRANT_TIMEOUT" default:"30s"`
	UpsertBatchSize int           `envconfig:"QDRANT_UPSERT_BATCH_SIZE" default:"100"`
}

// BaseURL returns the REST endpoint for the configured deployment
func (c QdrantConfig) BaseURL() string {
	if c.UseCloud && c.URL != "" {
		return strings.TrimRight(c.URL, "/")
	}
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// EmbeddingConfig holds embedding model settings
type EmbeddingConfig struct {
	Provider  string        `envconfig:"EMBEDDING_PROVIDER" default:"ollama"` // ollama, openai, hash
	Model     string        `envconfig:"EMBEDDING_MODEL" default:"all-minilm"`
	BaseURL   string        `envconfig:"EMBEDDING_BASE_URL" default:""`
	APIKey    string        `envconfig:"EMBEDDING_API_KEY" default:""`
	Dimension int           `envconfig:"EMBEDDING_DIMENSION" default:"384"`
	BatchSize int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"64"`
	CacheTTL  time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"24h"`
}

// ChunkingConfig holds text splitter settings
type ChunkingConfig struct {
	Size    int `envconfig:"CHUNK_SIZE" default:"500"`
	Overlap int `envconfig:"CHUNK_OVERLAP" default:"50"`
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Enabled      bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Host         string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `envconfig:"REDIS_PASSWORD" default:""`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Addr returns Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds object storage settings for generated artifacts
type StorageConfig struct {
	Enabled    bool   `envconfig:"STORAGE_ENABLED" default:"false"`
	Endpoint   string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey  string `envconfig:"STORAGE_ACCESS_KEY" default:"minioadmin"`
	SecretKey  string `envconfig:"STORAGE_SECRET_KEY" default:"minioadmin"`
	Bucket     string `envconfig:"STORAGE_BUCKET" default:"qa-agent"`
	UseSSL     bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
	ScriptPath string `envconfig:"STORAGE_SCRIPT_PATH" default:"scripts"`
}

// CaptureConfig holds live page capture settings
type CaptureConfig struct {
	Enabled  bool          `envconfig:"CAPTURE_ENABLED" default:"false"`
	Headless bool          `envconfig:"CAPTURE_HEADLESS" default:"true"`
	Timeout  time.Duration `envconfig:"CAPTURE_TIMEOUT" default:"30s"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	CORSEnabled        bool     `envconfig:"CORS_ENABLED" default:"true"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RateLimitEnabled   bool     `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
	RateLimitRPM       int      `envconfig:"RATE_LIMIT_RPM" default:"60"`
}

// Load reads an optional .env file and loads configuration from environment variables
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errors []string

	if c.LLM.UseGroq && c.Groq.APIKey == "" {
		errors = append(errors, "GROQ_API_KEY is required when USE_GROQ is true (get one from https://console.groq.com/keys)")
	}

	if c.Qdrant.UseCloud && c.Qdrant.URL == "" {
		errors = append(errors, "QDRANT_URL is required when QDRANT_USE_CLOUD is true")
	}

	if c.Chunking.Size <= 0 {
		errors = append(errors, "CHUNK_SIZE must be positive")
	} else if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errors = append(errors, "CHUNK_OVERLAP must be between 0 and CHUNK_SIZE")
	}

	switch c.Embedding.Provider {
	case "ollama", "hash":
	case "openai":
		if c.Embedding.APIKey == "" {
			errors = append(errors, "EMBEDDING_API_KEY is required for the openai embedding provider")
		}
	default:
		errors = append(errors, fmt.Sprintf("unsupported EMBEDDING_PROVIDER %q", c.Embedding.Provider))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// GetLogLevel returns the appropriate zap log level
func (c *Config) GetLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
