package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/ingest"
	"github.com/testforge/qaagent/pkg/httputil"
)

const (
	// DefaultMaxUploadSize bounds a multipart upload request
	DefaultMaxUploadSize = 50 << 20

	multipartMemory = 32 << 20
)

// Ingestor extracts, chunks and indexes documents
type Ingestor interface {
	Ingest(ctx context.Context, files []ingest.FileInput, forceRecreate bool) (*ingest.BatchResult, error)
}

// DocumentHandler handles document uploads
type DocumentHandler struct {
	ingestor      Ingestor
	maxUploadSize int64
	logger        *zap.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(ingestor Ingestor, maxUploadSize int64, logger *zap.Logger) *DocumentHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &DocumentHandler{
		ingestor:      ingestor,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// FailureResponse describes a document that was skipped
type FailureResponse struct {
	Source  string `json:"source"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IngestResponse is the API representation of a batch ingestion
type IngestResponse struct {
	Processed int               `json:"processed"`
	Chunks    int               `json:"chunks"`
	Sources   []string          `json:"sources"`
	Failures  []FailureResponse `json:"failures"`
}

func toFailure(source string, err error) FailureResponse {
	f := FailureResponse{Source: source, Code: domain.GetErrorCode(err), Message: err.Error()}
	if appErr, ok := domain.AsAppError(err); ok {
		f.Message = appErr.Message
	}
	return f
}

// Upload handles POST /api/v1/documents
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.ErrorFromDomain(w, domain.ErrPayloadTooLarge(h.maxUploadSize))
			return
		}
		httputil.ErrorFromDomain(w, domain.ErrValidationField("files", "expected a multipart form: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("files", "at least one file is required"))
		return
	}

	forceRecreate := false
	if v := r.FormValue("force_recreate"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			httputil.ErrorFromDomain(w, domain.ErrValidationField("force_recreate", "must be a boolean"))
			return
		}
		forceRecreate = parsed
	}

	var (
		inputs   []ingest.FileInput
		failures []FailureResponse
	)
	for _, fh := range headers {
		input, err := readUpload(fh)
		if err != nil {
			h.logger.Warn("Rejected upload", zap.String("source", fh.Filename), zap.Error(err))
			failures = append(failures, toFailure(fh.Filename, err))
			continue
		}
		inputs = append(inputs, input)
	}

	result, err := h.ingestor.Ingest(r.Context(), inputs, forceRecreate)
	if result != nil {
		for _, f := range result.Failures {
			failures = append(failures, toFailure(f.Name, f.Err))
		}
	}
	if failures == nil {
		failures = []FailureResponse{}
	}
	if err != nil {
		h.logger.Error("Failed to ingest documents", zap.Int("files", len(headers)), zap.Error(err))
		if appErr, ok := domain.AsAppError(err); ok {
			err = appErr.WithMetadata("failures", failures)
		}
		httputil.ErrorFromDomain(w, err)
		return
	}

	sources := result.Sources()
	if sources == nil {
		sources = []string{}
	}
	httputil.JSON(w, http.StatusOK, IngestResponse{
		Processed: result.Processed,
		Chunks:    len(result.Chunks),
		Sources:   sources,
		Failures:  failures,
	})
}

func readUpload(fh *multipart.FileHeader) (ingest.FileInput, error) {
	f, err := fh.Open()
	if err != nil {
		return ingest.FileInput{}, domain.ErrExtractionFailed(fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return ingest.FileInput{}, domain.ErrExtractionFailed(fh.Filename, err)
	}

	fileType, err := ingest.DetectFileType(fh.Filename, data)
	if err != nil {
		return ingest.FileInput{}, err
	}

	return ingest.FileInput{
		Name: fh.Filename,
		Type: fileType,
		Data: data,
	}, nil
}
