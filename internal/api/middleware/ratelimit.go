package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/pkg/httputil"
)

// RateLimiter counts requests per key within a fixed window
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int) (allowed bool, count int, err error)
}

// RateLimitMiddleware limits requests per client address
type RateLimitMiddleware struct {
	limiter RateLimiter
	limit   int
	window  time.Duration
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware. A nil limiter
// or a non-positive limit disables it.
func NewRateLimitMiddleware(limiter RateLimiter, limit int, window time.Duration, logger *zap.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		logger:  logger,
	}
}

// Handler returns the middleware handler
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, count, err := m.limiter.CheckRateLimit(r.Context(), clientKey(r), m.limit)
		if err != nil {
			// Fail open: the limiter backend is optional.
			m.logger.Warn("Rate limit check failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		remaining := m.limit - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			httputil.ErrorFromDomain(w, domain.ErrRateLimited(m.window))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey keys on the remote host. RealIP has already applied forwarding headers.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
