package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/pkg/httputil"
)

// TestCaseGenerator synthesizes test cases from indexed documentation
type TestCaseGenerator interface {
	Generate(ctx context.Context, query string, topK int) *domain.TestCaseResult
}

// TestCaseHandler handles test case generation
type TestCaseHandler struct {
	generator TestCaseGenerator
	logger    *zap.Logger
}

// NewTestCaseHandler creates a new test case handler
func NewTestCaseHandler(generator TestCaseGenerator, logger *zap.Logger) *TestCaseHandler {
	return &TestCaseHandler{generator: generator, logger: logger}
}

// GenerateTestCasesRequest is the body of a generation request
type GenerateTestCasesRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// Generate handles POST /api/v1/testcases. A failed synthesis is returned
// as 422 with the result, including the raw model output when parsing failed.
func (h *TestCaseHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateTestCasesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("query", "query is required"))
		return
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("top_k", "top_k must be between 1 and 50"))
		return
	}

	result := h.generator.Generate(r.Context(), req.Query, req.TopK)
	if !result.Success {
		h.logger.Warn("Test case generation failed", zap.String("query", req.Query), zap.String("error", result.Error))
		httputil.JSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
