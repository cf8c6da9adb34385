package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/services/scriptgen"
	"github.com/testforge/qaagent/pkg/httputil"
)

// ScriptGenerator turns a test case into an automation script
type ScriptGenerator interface {
	Generate(ctx context.Context, tc domain.TestCase) (*domain.GeneratedScript, error)
}

// ScriptHandler handles script generation and validation
type ScriptHandler struct {
	generator ScriptGenerator
	logger    *zap.Logger
}

// NewScriptHandler creates a new script handler
func NewScriptHandler(generator ScriptGenerator, logger *zap.Logger) *ScriptHandler {
	return &ScriptHandler{generator: generator, logger: logger}
}

// GenerateScriptRequest is the body of a script generation request
type GenerateScriptRequest struct {
	TestCase *domain.TestCase `json:"test_case"`
}

// ValidateScriptRequest is the body of a validation request
type ValidateScriptRequest struct {
	Script string `json:"script"`
}

// Generate handles POST /api/v1/scripts
func (h *ScriptHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateScriptRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	if req.TestCase == nil {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("test_case", "test_case is required"))
		return
	}
	if strings.TrimSpace(req.TestCase.TestID) == "" && strings.TrimSpace(req.TestCase.TestName) == "" {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("test_case", "test_case needs a test_id or test_name"))
		return
	}

	script, err := h.generator.Generate(r.Context(), *req.TestCase)
	if err != nil {
		h.logger.Error("Script generation failed", zap.String("test_id", req.TestCase.TestID), zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, script)
}

// Validate handles POST /api/v1/scripts/validate
func (h *ScriptHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateScriptRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, scriptgen.Validate(scriptgen.StripFences(req.Script)))
}
