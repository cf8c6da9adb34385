package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/ingest"
	"github.com/testforge/qaagent/internal/services/discovery"
	"github.com/testforge/qaagent/pkg/httputil"
)

// PageIngestor captures a live page and indexes its markup
type PageIngestor interface {
	CaptureAndIngest(ctx context.Context, url string) (*discovery.CapturedPage, *ingest.BatchResult, error)
}

// PageHandler handles live page capture
type PageHandler struct {
	ingestor PageIngestor
	logger   *zap.Logger
}

// NewPageHandler creates a new page handler
func NewPageHandler(ingestor PageIngestor, logger *zap.Logger) *PageHandler {
	return &PageHandler{ingestor: ingestor, logger: logger}
}

// CaptureRequest is the body of a capture request
type CaptureRequest struct {
	URL string `json:"url"`
}

// CaptureResponse is the API representation of a captured page
type CaptureResponse struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	FileName string `json:"file_name"`
	Bytes    int    `json:"bytes"`
	Chunks   int    `json:"chunks"`
}

// Capture handles POST /api/v1/pages/capture
func (h *PageHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("url", "url is required"))
		return
	}

	page, result, err := h.ingestor.CaptureAndIngest(r.Context(), req.URL)
	if err != nil {
		h.logger.Error("Page capture failed", zap.String("url", req.URL), zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}

	resp := CaptureResponse{
		URL:      page.URL,
		Title:    page.Title,
		FileName: discovery.FileName(page.URL),
		Bytes:    len(page.HTML),
	}
	if result != nil {
		resp.Chunks = len(result.Chunks)
	}
	httputil.JSON(w, http.StatusOK, resp)
}
