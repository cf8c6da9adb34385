// Package testdesign synthesizes structured test cases from indexed documentation.
package testdesign

import (
	"context"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/llm"
	"github.com/testforge/qaagent/internal/observability"
)

const (
	DefaultTopK            = 5
	DefaultMaxContextRunes = 12000

	temperature = 0.3
	maxTokens   = 3000
)

// Retriever returns the chunks most similar to a query
type Retriever interface {
	Query(ctx context.Context, text string, k int, filter map[string]interface{}) ([]domain.RetrievalResult, error)
}

// Config configures the synthesizer
type Config struct {
	MaxContextRunes int
}

// Synthesizer turns a natural-language request into grounded test cases
type Synthesizer struct {
	retriever Retriever
	generator llm.Generator
	config    Config
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewSynthesizer creates a synthesizer
func NewSynthesizer(retriever Retriever, generator llm.Generator, config Config, metrics *observability.Metrics, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxContextRunes <= 0 {
		config.MaxContextRunes = DefaultMaxContextRunes
	}
	return &Synthesizer{
		retriever: retriever,
		generator: generator,
		config:    config,
		metrics:   metrics,
		logger:    logger,
	}
}

// Generate retrieves context for query and asks the model for test cases.
// It never returns nil; failures are reported through Success and Error.
func (s *Synthesizer) Generate(ctx context.Context, query string, topK int) *domain.TestCaseResult {
	if topK <= 0 {
		topK = DefaultTopK
	}
	logger := s.logger.With(zap.String("query", query), zap.Int("top_k", topK))

	results, err := s.retriever.Query(ctx, query, topK, nil)
	if err != nil {
		logger.Error("retrieval failed", zap.Error(err))
		s.metrics.RecordGeneration("testcases", "retrieval_failure")
		return failure(err.Error(), "")
	}
	if len(results) == 0 {
		logger.Warn("no documentation retrieved, asking the model without context")
	}

	prompt := UserPrompt(query, BuildContext(results, s.config.MaxContextRunes))
	raw, err := s.generator.Generate(ctx, prompt, llm.GenerateOptions{
		System:      SystemPrompt(),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		logger.Error("test case generation failed", zap.Error(err))
		s.metrics.RecordGeneration("testcases", "model_failure")
		return failure(err.Error(), "")
	}

	cases, err := ParseTestCases(raw)
	if err != nil {
		logger.Warn("model response is not valid test case JSON",
			zap.Error(err),
			zap.Int("response_chars", len(raw)),
		)
		s.metrics.RecordGeneration("testcases", "parse_failure")
		return failure(err.Error(), raw)
	}

	logger.Info("generated test cases",
		zap.Int("test_cases", len(cases)),
		zap.Int("chunks", len(results)),
	)
	s.metrics.RecordGeneration("testcases", "success")

	return &domain.TestCaseResult{
		Success:         true,
		TestCases:       cases,
		SourceDocuments: distinctSources(results),
	}
}

func failure(msg, raw string) *domain.TestCaseResult {
	return &domain.TestCaseResult{
		Success:         false,
		TestCases:       []domain.TestCase{},
		SourceDocuments: []string{},
		Error:           msg,
		RawResponse:     raw,
	}
}

// distinctSources lists source names in first-seen order
func distinctSources(results []domain.RetrievalResult) []string {
	seen := make(map[string]struct{}, len(results))
	sources := make([]string, 0, len(results))
	for _, r := range results {
		src := r.Metadata.Source
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		sources = append(sources, src)
	}
	return sources
}
