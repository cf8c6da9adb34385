// Package scriptgen turns a structured test case into a Python Selenium script
// grounded in the page markup recovered from the index.
package scriptgen

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/llm"
	"github.com/testforge/qaagent/internal/observability"
	"github.com/testforge/qaagent/internal/services/discovery"
)

const (
	// MarkupQuery is biased toward interactive-element vocabulary so the HTML
	// chunk ranks among prose chunks
	MarkupQuery = "HTML structure checkout form button input select"
	// MarkupTopK over-fetches because the HTML chunk rarely ranks first
	MarkupTopK = 20

	temperature = 0.2
	maxTokens   = 2500
)

// Retriever returns the chunks most similar to a query
type Retriever interface {
	Query(ctx context.Context, text string, k int, filter map[string]interface{}) ([]domain.RetrievalResult, error)
}

// ArtifactStore persists generated scripts
type ArtifactStore interface {
	UploadScript(ctx context.Context, fileName, script string) (string, error)
}

// Generator synthesizes Selenium scripts
type Generator struct {
	retriever Retriever
	generator llm.Generator
	store     ArtifactStore
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewGenerator creates a script generator. store may be nil.
func NewGenerator(retriever Retriever, generator llm.Generator, store ArtifactStore, metrics *observability.Metrics, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		retriever: retriever,
		generator: generator,
		store:     store,
		metrics:   metrics,
		logger:    logger,
	}
}

// Generate produces a script for tc. It fails with ErrNoMarkup when no HTML
// can be recovered from the index, and with the model error when generation fails.
func (g *Generator) Generate(ctx context.Context, tc domain.TestCase) (*domain.GeneratedScript, error) {
	logger := g.logger.With(zap.String("test_id", tc.TestID), zap.String("test_name", tc.TestName))

	markup, err := g.recoverMarkup(ctx)
	if err != nil {
		logger.Error("no HTML content available", zap.Error(err))
		g.metrics.RecordGeneration("script", "no_markup")
		return nil, err
	}

	structure := discovery.ExtractStructure(markup)
	if structure.IsEmpty() {
		logger.Warn("recovered markup has no interactive elements", zap.Int("markup_chars", len(markup)))
	}

	response, err := g.generator.Generate(ctx, UserPrompt(tc, structure), llm.GenerateOptions{
		System:      SystemPrompt(),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		logger.Error("script generation failed", zap.Error(err))
		g.metrics.RecordGeneration("script", "model_failure")
		return nil, err
	}

	script := StripFences(response)
	if script == "" {
		g.metrics.RecordGeneration("script", "empty")
		return nil, domain.ErrModelUnreachable(llm.Backend(g.generator), errors.New("empty response"))
	}

	result := &domain.GeneratedScript{
		TestID:     tc.TestID,
		FileName:   domain.ScriptFileName(tc.TestID),
		Script:     script,
		Validation: Validate(script),
	}

	if g.store != nil {
		uri, err := g.store.UploadScript(ctx, result.FileName, script)
		if err != nil {
			logger.Warn("failed to store generated script", zap.Error(err))
		} else {
			result.ArtifactURI = uri
		}
	}

	logger.Info("generated selenium script",
		zap.Int("chars", len(script)),
		zap.Bool("valid", result.Validation.Valid),
		zap.Int("warnings", len(result.Validation.Warnings)),
	)
	g.metrics.RecordGeneration("script", "success")
	return result, nil
}

func (g *Generator) recoverMarkup(ctx context.Context) (string, error) {
	results, err := g.retriever.Query(ctx, MarkupQuery, MarkupTopK, nil)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		g.logger.Warn("no documents found in vector store")
	}
	return RecoverHTML(results)
}
