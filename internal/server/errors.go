package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/localrivet/hybridrec/internal/errortypes"
)

// ErrorResponse represents the structure of error responses sent by the API
type ErrorResponse struct {
	Status     string                 `json:"status"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
}

// Common error codes
const (
	// ErrorCodeInvalidRequest indicates the client sent an invalid request
	ErrorCodeInvalidRequest = "INVALID_REQUEST"

	// ErrorCodeInternalError indicates an internal server error
	ErrorCodeInternalError = "INTERNAL_ERROR"

	// ErrorCodeTooLarge indicates the request body exceeded the size limit
	ErrorCodeTooLarge = "REQUEST_TOO_LARGE"

	// ErrorCodeTimeout indicates the request did not finish before its deadline
	ErrorCodeTimeout = "TIMEOUT"

	// ErrorCodeBadGateway indicates a failure in an upstream service
	ErrorCodeBadGateway = "BAD_GATEWAY"

	// ErrorCodeUnavailable indicates the artifacts are not loaded
	ErrorCodeUnavailable = "UNAVAILABLE"
)

// Error response codes, one per error kind
const (
	StatusCodeInvalidInput         = "INVALID_INPUT"
	StatusCodeInvalidConfiguration = "INVALID_CONFIGURATION"
	StatusCodeEmptyQuery           = "EMPTY_QUERY"
	StatusCodeDimensionMismatch    = "DIMENSION_MISMATCH"
	StatusCodeMissingArtifact      = "MISSING_ARTIFACT"
	StatusCodeEncodingFailed       = "ENCODING_FAILED"
	StatusCodeSchemaError          = "SCHEMA_ERROR"
	StatusCodeDatabaseError        = "DATABASE_ERROR"
	StatusCodeConfigError          = "CONFIG_ERROR"
	StatusCodeInternalError        = "INTERNAL_ERROR"
	StatusCodeCanceled             = "CANCELED"
	StatusCodeUnknownError         = "UNKNOWN_ERROR"
)

var typeCodes = map[errortypes.ErrorType]string{
	errortypes.ErrorTypeInvalidInput:         StatusCodeInvalidInput,
	errortypes.ErrorTypeInvalidConfiguration: StatusCodeInvalidConfiguration,
	errortypes.ErrorTypeEmptyQuery:           StatusCodeEmptyQuery,
	errortypes.ErrorTypeDimensionMismatch:    StatusCodeDimensionMismatch,
	errortypes.ErrorTypeMissingArtifact:      StatusCodeMissingArtifact,
	errortypes.ErrorTypeEncodingFailed:       StatusCodeEncodingFailed,
	errortypes.ErrorTypeSchema:               StatusCodeSchemaError,
	errortypes.ErrorTypeDatabase:             StatusCodeDatabaseError,
	errortypes.ErrorTypeConfig:               StatusCodeConfigError,
	errortypes.ErrorTypeInternal:             StatusCodeInternalError,
}

// ErrorCode returns the response code for err. It is used both for HTTP
// bodies and for in-band MCP tool errors.
func ErrorCode(err error) string {
	var statusErr *ErrorWithStatus
	if errors.As(err, &statusErr) {
		return statusErr.ErrorCode()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StatusCodeCanceled
	}
	if code, ok := typeCodes[errortypes.TypeOf(err)]; ok {
		return code
	}
	return StatusCodeUnknownError
}

// writeErrorResponse writes a structured error response to the HTTP response writer
func writeErrorResponse(w http.ResponseWriter, status int, code, message string, err error) {
	errResp := ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
			"kind":  ErrorCode(err),
		}

		slog.Warn("API error",
			"status_code", status,
			"error_code", code,
			"client_message", message,
			"error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// HandleBadRequest handles 400 Bad Request errors
func HandleBadRequest(w http.ResponseWriter, message string, err error) {
	writeErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, err)
}

// HandleInternalError handles 500 Internal Server Error errors
func HandleInternalError(w http.ResponseWriter, message string, err error) {
	writeErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, message, err)
}

// HandleBadGateway handles 502 Bad Gateway errors
func HandleBadGateway(w http.ResponseWriter, message string, err error) {
	writeErrorResponse(w, http.StatusBadGateway, ErrorCodeBadGateway, message, err)
}

// HandleUnavailable handles 503 Service Unavailable errors
func HandleUnavailable(w http.ResponseWriter, message string, err error) {
	writeErrorResponse(w, http.StatusServiceUnavailable, ErrorCodeUnavailable, message, err)
}

// ErrorWithStatus creates an error with an HTTP status code
type ErrorWithStatus struct {
	err        error
	statusCode int
	errorCode  string
	message    string
}

// NewErrorWithStatus creates a new error with HTTP status code
func NewErrorWithStatus(err error, status int, code, message string) *ErrorWithStatus {
	return &ErrorWithStatus{
		err:        err,
		statusCode: status,
		errorCode:  code,
		message:    message,
	}
}

// Error returns the error message
func (e *ErrorWithStatus) Error() string {
	if e.message != "" {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error
func (e *ErrorWithStatus) Unwrap() error {
	return e.err
}

// StatusCode returns the HTTP status code
func (e *ErrorWithStatus) StatusCode() int {
	return e.statusCode
}

// ErrorCode returns the application error code
func (e *ErrorWithStatus) ErrorCode() string {
	return e.errorCode
}

// Message returns the client-friendly message
func (e *ErrorWithStatus) Message() string {
	return e.message
}

// HandleError inspects err and writes the matching HTTP response. Request
// validation kinds map to 400, missing artifacts to 503, encoder failures
// to 502 and everything else to 500.
func HandleError(w http.ResponseWriter, err error) {
	var statusErr *ErrorWithStatus
	if errors.As(err, &statusErr) {
		writeErrorResponse(w, statusErr.StatusCode(), statusErr.ErrorCode(),
			statusErr.Message(), statusErr.Unwrap())
		return
	}

	switch errortypes.TypeOf(err) {
	case errortypes.ErrorTypeInvalidInput,
		errortypes.ErrorTypeInvalidConfiguration,
		errortypes.ErrorTypeEmptyQuery,
		errortypes.ErrorTypeDimensionMismatch:
		HandleBadRequest(w, "Invalid request parameters", err)
	case errortypes.ErrorTypeMissingArtifact:
		HandleUnavailable(w, "Recommendation artifacts are not loaded", err)
	case errortypes.ErrorTypeEncodingFailed:
		HandleBadGateway(w, "Query encoder failed", err)
	default:
		HandleInternalError(w, "An unexpected error occurred", err)
	}
}

// WriteError writes an error response with an explicit status code
func WriteError(w http.ResponseWriter, err error, status int) {
	slog.Error("API Error", "error", err, "status", status)

	errorResponse := errorToResponse(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		slog.Error("Error encoding JSON error response", "error", err, "original_error_message", errorResponse.Message, "status", status)
	}
}

// errorToResponse converts an error to a standardized ErrorResponse
func errorToResponse(err error) ErrorResponse {
	resp := ErrorResponse{
		Status:  "error",
		Code:    ErrorCode(err),
		Message: err.Error(),
	}

	var appErr *errortypes.AppError
	if errors.As(err, &appErr) {
		resp.Details = appErr.Fields
		resp.StackTrace = appErr.StackInfo
	}
	return resp
}
