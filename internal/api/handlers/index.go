package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/intelligence"
	"github.com/testforge/qaagent/pkg/httputil"
)

const maxTopK = 50

// IndexService is the read and maintenance side of the vector index
type IndexService interface {
	Stats(ctx context.Context) intelligence.CollectionStats
	Clear(ctx context.Context) error
	Query(ctx context.Context, text string, k int, filter map[string]interface{}) ([]domain.RetrievalResult, error)
}

// IndexHandler handles index inspection and search
type IndexHandler struct {
	index  IndexService
	logger *zap.Logger
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(index IndexService, logger *zap.Logger) *IndexHandler {
	return &IndexHandler{index: index, logger: logger}
}

// SearchRequest is the body of a similarity search
type SearchRequest struct {
	Query  string                 `json:"query"`
	TopK   int                    `json:"top_k"`
	Filter map[string]interface{} `json:"filter,omitempty"`
}

// Stats handles GET /api/v1/index/stats
func (h *IndexHandler) Stats(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, h.index.Stats(r.Context()))
}

// Clear handles DELETE /api/v1/index
func (h *IndexHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.index.Clear(r.Context()); err != nil {
		h.logger.Error("Failed to clear index", zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, h.index.Stats(r.Context()))
}

// Search handles POST /api/v1/index/search
func (h *IndexHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
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

	results, err := h.index.Query(r.Context(), req.Query, req.TopK, req.Filter)
	if err != nil {
		h.logger.Error("Search failed", zap.String("query", req.Query), zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, results)
}
