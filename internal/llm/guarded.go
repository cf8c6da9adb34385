package llm

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/observability"
	"github.com/testforge/qaagent/internal/resilience"
)

// GuardedGenerator stops calling a backend that keeps failing. While the
// circuit is open, calls fail immediately with ModelUnreachable.
type GuardedGenerator struct {
	next    Generator
	breaker *resilience.CircuitBreaker
	backend string
}

// NewGuardedGenerator wraps next with a circuit breaker built from config.
// State transitions are logged and exported as metrics.
func NewGuardedGenerator(next Generator, config resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *GuardedGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := Backend(next)
	if config.Name == "" {
		config.Name = backend
	}

	onChange := config.OnStateChange
	config.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("model circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		metrics.RecordCircuitState(name, int(to))
		if onChange != nil {
			onChange(name, from, to)
		}
	}

	// Malformed output is not a backend outage.
	config.IsFailure = func(err error) bool {
		return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, domain.ErrResponseParseSentinel)
	}

	return &GuardedGenerator{
		next:    next,
		breaker: resilience.NewCircuitBreaker(config),
		backend: backend,
	}
}

// Generate calls the wrapped backend unless the circuit is open
func (g *GuardedGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	out, err := resilience.Do(ctx, g.breaker, func(ctx context.Context) (string, error) {
		return g.next.Generate(ctx, prompt, opts)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return "", domain.ErrModelUnreachable(g.backend, err).WithDetails("circuit breaker is open; the backend failed repeatedly")
	}
	return out, err
}

// IsAvailable reports false while the circuit is open without calling the backend
func (g *GuardedGenerator) IsAvailable(ctx context.Context) bool {
	if g.breaker.State() == resilience.StateOpen {
		return false
	}
	return g.next.IsAvailable(ctx)
}

// Model delegates to the wrapped backend
func (g *GuardedGenerator) Model() string {
	return g.next.Model()
}

// Unwrap returns the wrapped backend
func (g *GuardedGenerator) Unwrap() Generator {
	return g.next
}

// State returns the breaker state
func (g *GuardedGenerator) State() resilience.State {
	return g.breaker.State()
}
