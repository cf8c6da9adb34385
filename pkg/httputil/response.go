package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/testforge/qaagent/internal/domain"
)

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents an API error
type Error struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  string         `json:"details,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(resp)
}

// JSONError writes a JSON error response
func JSONError(w http.ResponseWriter, status int, apiErr *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(Response{Success: false, Error: apiErr})
}

// ErrorFromDomain converts an error to an HTTP response. AppErrors keep their
// status and code; anything else is reported as an internal error.
func ErrorFromDomain(w http.ResponseWriter, err error) {
	status := domain.GetHTTPStatus(err)

	appErr, ok := domain.AsAppError(err)
	if !ok {
		JSONError(w, status, &Error{
			Code:    domain.ErrCodeInternal,
			Message: "Internal server error",
		})
		return
	}

	if appErr.Retryable && appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(appErr.RetryAfter.Seconds())))
	}
	JSONError(w, status, &Error{
		Code:     appErr.Code,
		Message:  appErr.Message,
		Details:  appErr.Details,
		Metadata: appErr.Metadata,
	})
}

// DecodeJSON decodes JSON from request body
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return domain.ErrValidationField("body", "request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ErrValidationField("body", "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.ErrPayloadTooLarge(tooLarge.Limit)
		}
		return domain.ErrValidationField("body", "invalid JSON: "+err.Error())
	}

	return nil
}
