package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/agent"
	"github.com/testforge/qaagent/internal/api/handlers"
	"github.com/testforge/qaagent/internal/api/middleware"
	"github.com/testforge/qaagent/internal/observability"
	rediscache "github.com/testforge/qaagent/internal/repository/redis"
	"github.com/testforge/qaagent/pkg/httputil"
)

// ReadinessChecker reports the health of each dependency. A nil error means healthy.
type ReadinessChecker interface {
	Ready(ctx context.Context) map[string]error
}

// Router holds the HTTP router and its dependencies
type Router struct {
	chi.Router
	logger *zap.Logger
}

// RouterConfig contains configuration for the router
type RouterConfig struct {
	Documents handlers.Ingestor
	Index     handlers.IndexService
	TestCases handlers.TestCaseGenerator
	Scripts   handlers.ScriptGenerator
	Pages     handlers.PageIngestor
	Readiness ReadinessChecker

	RateLimiter middleware.RateLimiter
	RateLimit   int // requests per minute per client, 0 disables

	Metrics        *observability.Metrics
	Logger         *zap.Logger
	EnableCORS     bool
	AllowedOrigins []string
	MaxUploadSize  int64
	RequestTimeout time.Duration
	Version        string
}

// ConfigFromAgent maps the agent's services onto a router configuration
func ConfigFromAgent(a *agent.Agent) RouterConfig {
	cfg := RouterConfig{
		Documents:      a.Pipeline,
		Index:          a.Index,
		TestCases:      a.TestCases,
		Scripts:        a.Scripts,
		Pages:          a,
		Readiness:      a,
		Metrics:        a.Metrics,
		Logger:         a.Logger.Named("api"),
		EnableCORS:     a.Config.Security.CORSEnabled,
		AllowedOrigins: a.Config.Security.CORSAllowedOrigins,
		MaxUploadSize:  a.Config.Server.MaxUploadSize,
		RequestTimeout: a.Config.Server.WriteTimeout,
		Version:        a.Config.App.Version,
	}
	if a.Cache != nil && a.Config.Security.RateLimitEnabled {
		cfg.RateLimiter = a.Cache
		cfg.RateLimit = a.Config.Security.RateLimitRPM
	}
	return cfg
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Base middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(cfg.Logger).Handler)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Handler)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.HTTPMiddleware)
	}
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	if cfg.EnableCORS {
		origins := cfg.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", healthHandler(cfg.Version))
	r.Get("/ready", readyHandler(cfg.Readiness))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	documentHandler := handlers.NewDocumentHandler(cfg.Documents, cfg.MaxUploadSize, cfg.Logger)
	indexHandler := handlers.NewIndexHandler(cfg.Index, cfg.Logger)
	testCaseHandler := handlers.NewTestCaseHandler(cfg.TestCases, cfg.Logger)
	scriptHandler := handlers.NewScriptHandler(cfg.Scripts, cfg.Logger)
	pageHandler := handlers.NewPageHandler(cfg.Pages, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NewRateLimitMiddleware(cfg.RateLimiter, cfg.RateLimit, rediscache.RateLimitWindow, cfg.Logger).Handler)

		r.Post("/documents", documentHandler.Upload)

		r.Route("/index", func(r chi.Router) {
			r.Get("/stats", indexHandler.Stats)
			r.Post("/search", indexHandler.Search)
			r.Delete("/", indexHandler.Clear)
		})

		r.Post("/testcases", testCaseHandler.Generate)

		r.Route("/scripts", func(r chi.Router) {
			r.Post("/", scriptHandler.Generate)
			r.Post("/validate", scriptHandler.Validate)
		})

		r.Post("/pages/capture", pageHandler.Capture)
	})

	return &Router{
		Router: r,
		logger: cfg.Logger,
	}
}

// healthHandler returns basic health status
func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "qaagent-api",
			"version": version,
		})
	}
}

// readyHandler checks if all dependencies are ready
func readyHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string)
		allHealthy := true

		if checker != nil {
			for name, err := range checker.Ready(r.Context()) {
				if err != nil {
					checks[name] = "unhealthy: " + err.Error()
					allHealthy = false
				} else {
					checks[name] = "healthy"
				}
			}
		}

		status := http.StatusOK
		statusText := "ready"
		if !allHealthy {
			status = http.StatusServiceUnavailable
			statusText = "not ready"
		}

		httputil.JSON(w, status, map[string]any{
			"status": statusText,
			"checks": checks,
		})
	}
}
