package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes for categorization
const (
	// Client errors (4xx)
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ErrCodeRateLimited     = "RATE_LIMITED"

	// Server errors (5xx)
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeServiceUnavail = "SERVICE_UNAVAILABLE"

	// Ingestion errors
	ErrCodeUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	ErrCodeExtractionFailed    = "EXTRACTION_FAILED"

	// Index errors
	ErrCodeEmbeddingFailed = "EMBEDDING_FAILED"
	ErrCodeIndexTransport  = "INDEX_TRANSPORT_FAILED"

	// Generation errors
	ErrCodeModelUnreachable = "MODEL_UNREACHABLE"
	ErrCodeModelTimeout     = "MODEL_TIMEOUT"
	ErrCodeResponseParse    = "RESPONSE_PARSE_FAILED"
	ErrCodeNoMarkup         = "NO_MARKUP_FOUND"

	// Capture errors
	ErrCodeCaptureFailed = "CAPTURE_FAILED"
)

// AppError is the base error type for all application errors
type AppError struct {
	// Error code for programmatic handling
	Code string `json:"code"`

	// Human-readable message
	Message string `json:"message"`

	// Detailed description (optional, for developers)
	Details string `json:"details,omitempty"`

	// HTTP status code
	HTTPStatus int `json:"-"`

	// Original error (for error wrapping)
	Cause error `json:"-"`

	// Metadata for additional context
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Timestamp when error occurred
	Timestamp time.Time `json:"timestamp"`

	// Retry information
	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithRetry marks the error as retryable
func (e *AppError) WithRetry(after time.Duration) *AppError {
	e.Retryable = true
	e.RetryAfter = after
	return e
}

// NewError creates a new AppError
func NewError(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now().UTC(),
	}
}

// Validation errors

func ErrValidation(message string) *AppError {
	return NewError(ErrCodeValidation, message, http.StatusBadRequest)
}

func ErrValidationField(field, message string) *AppError {
	return NewError(ErrCodeValidation, message, http.StatusBadRequest).
		WithMetadata("field", field)
}

func ErrNotFound(resource, id string) *AppError {
	return NewError(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", resource, id), http.StatusNotFound).
		WithMetadata("resource", resource).
		WithMetadata("id", id)
}

func ErrRateLimited(retryAfter time.Duration) *AppError {
	return NewError(ErrCodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests).
		WithRetry(retryAfter)
}

func ErrPayloadTooLarge(limit int64) *AppError {
	return NewError(ErrCodePayloadTooLarge, fmt.Sprintf("Request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge).
		WithMetadata("limit_bytes", limit)
}

// Server errors

func ErrInternal(message string) *AppError {
	if message == "" {
		message = "Internal server error"
	}
	return NewError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func ErrServiceUnavailable(service string) *AppError {
	return NewError(ErrCodeServiceUnavail, fmt.Sprintf("Service unavailable: %s", service), http.StatusServiceUnavailable).
		WithMetadata("service", service).
		WithRetry(30 * time.Second)
}

// Ingestion errors

// ErrUnsupportedFileType reports a file whose type has no extractor
func ErrUnsupportedFileType(fileType string) *AppError {
	return NewError(ErrCodeUnsupportedFileType, fmt.Sprintf("Unsupported file type: %s", fileType), http.StatusUnsupportedMediaType).
		WithMetadata("file_type", fileType)
}

// ErrExtractionFailed reports a file that could not be read or parsed
func ErrExtractionFailed(source string, err error) *AppError {
	return NewError(ErrCodeExtractionFailed, fmt.Sprintf("Text extraction failed: %s", source), http.StatusUnprocessableEntity).
		WithCause(err).
		WithMetadata("source", source)
}

// Index errors

// ErrEmbeddingFailed reports an embedding model failure
func ErrEmbeddingFailed(err error) *AppError {
	return NewError(ErrCodeEmbeddingFailed, "Embedding generation failed", http.StatusBadGateway).
		WithCause(err)
}

// ErrIndexTransport reports a failed vector store RPC
func ErrIndexTransport(operation string, err error) *AppError {
	return NewError(ErrCodeIndexTransport, fmt.Sprintf("Vector store %s failed", operation), http.StatusBadGateway).
		WithCause(err).
		WithMetadata("operation", operation)
}

// Generation errors

// ErrModelUnreachable reports a language model call that produced no response.
// Callers treat it as "no result"; it is never retried automatically.
func ErrModelUnreachable(backend string, err error) *AppError {
	return NewError(ErrCodeModelUnreachable, fmt.Sprintf("Language model unreachable: %s", backend), http.StatusServiceUnavailable).
		WithCause(err).
		WithMetadata("backend", backend)
}

// ErrModelTimeout reports a language model call that hit its deadline
func ErrModelTimeout(backend string, timeout time.Duration, err error) *AppError {
	return NewError(ErrCodeModelTimeout, fmt.Sprintf("Language model timed out after %s: %s", timeout, backend), http.StatusGatewayTimeout).
		WithCause(err).
		WithMetadata("backend", backend).
		WithMetadata("timeout", timeout.String())
}

// ErrResponseParse reports model output that did not match the expected schema.
// The raw text is attached for diagnosis.
func ErrResponseParse(raw string, err error) *AppError {
	return NewError(ErrCodeResponseParse, "Model response did not match the expected schema", http.StatusUnprocessableEntity).
		WithCause(err).
		WithMetadata("raw_response", raw)
}

// ErrNoMarkup reports that no HTML could be recovered from the index
func ErrNoMarkup() *AppError {
	return NewError(ErrCodeNoMarkup, "No HTML markup found in the index; upload an .html file first", http.StatusUnprocessableEntity)
}

func ErrCaptureFailed(url string, err error) *AppError {
	return NewError(ErrCodeCaptureFailed, fmt.Sprintf("Failed to capture page: %s", url), http.StatusBadGateway).
		WithCause(err).
		WithMetadata("url", url)
}

// Helper functions

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns the HTTP status code for an error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the error code for an error
func GetErrorCode(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Sentinel errors for comparison (used with errors.Is)
var (
	ErrNotFoundSentinel            = NewError(ErrCodeNotFound, "not found", http.StatusNotFound)
	ErrUnsupportedFileTypeSentinel = NewError(ErrCodeUnsupportedFileType, "unsupported file type", http.StatusUnsupportedMediaType)
	ErrExtractionSentinel          = NewError(ErrCodeExtractionFailed, "extraction failed", http.StatusUnprocessableEntity)
	ErrEmbeddingSentinel           = NewError(ErrCodeEmbeddingFailed, "embedding failed", http.StatusBadGateway)
	ErrIndexTransportSentinel      = NewError(ErrCodeIndexTransport, "index transport failed", http.StatusBadGateway)
	ErrModelUnreachableSentinel    = NewError(ErrCodeModelUnreachable, "model unreachable", http.StatusServiceUnavailable)
	ErrModelTimeoutSentinel        = NewError(ErrCodeModelTimeout, "model timeout", http.StatusGatewayTimeout)
	ErrResponseParseSentinel       = NewError(ErrCodeResponseParse, "response parse failed", http.StatusUnprocessableEntity)
	ErrNoMarkupSentinel            = NewError(ErrCodeNoMarkup, "no markup", http.StatusUnprocessableEntity)
)
