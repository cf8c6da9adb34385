// Package llm provides the language model backends used to synthesize test
// cases and scripts.
package llm

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
)

// Generator produces a text completion for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	IsAvailable(ctx context.Context) bool
	Model() string
}

// GenerateOptions controls a single completion
type GenerateOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Config selects and configures a backend
type Config struct {
	UseGroq bool
	Groq    GroqConfig
	Ollama  OllamaConfig
}

// New returns the Groq backend when UseGroq is set, otherwise Ollama
func New(cfg Config, logger *zap.Logger) (Generator, error) {
	if cfg.UseGroq {
		return NewGroqClient(cfg.Groq, logger)
	}
	return NewOllamaClient(cfg.Ollama, logger)
}

// ModelChecker is implemented by backends that can confirm the configured
// model is installed
type ModelChecker interface {
	HasModel(ctx context.Context) (bool, error)
}

// Root returns the backend at the bottom of a chain of wrappers
func Root(g Generator) Generator {
	for {
		w, ok := g.(interface{ Unwrap() Generator })
		if !ok {
			return g
		}
		g = w.Unwrap()
	}
}

// Backend names the backend behind g, e.g. "groq" or "ollama"
func Backend(g Generator) string {
	switch v := g.(type) {
	case *GroqClient:
		return "groq"
	case *OllamaClient:
		return "ollama"
	case interface{ Unwrap() Generator }:
		return Backend(v.Unwrap())
	default:
		return "unknown"
	}
}

// classifyError maps a transport failure to ModelTimeout or ModelUnreachable
func classifyError(backend string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsAppError(err) {
		return err
	}
	if isTimeout(err) {
		return domain.ErrModelTimeout(backend, timeout, err)
	}
	return domain.ErrModelUnreachable(backend, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// estimateTokens is a rough count at about four characters per token
func estimateTokens(text string) int {
	return len(text) / 4
}
