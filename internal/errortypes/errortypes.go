// Package errortypes provides error types and handling for hybridrec.
package errortypes

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

// ErrorType represents the type of error that occurred
type ErrorType string

// Error types
const (
	ErrorTypeInvalidInput         ErrorType = "invalid_input"
	ErrorTypeInvalidConfiguration ErrorType = "invalid_configuration"
	ErrorTypeMissingArtifact      ErrorType = "missing_artifact"
	ErrorTypeDimensionMismatch    ErrorType = "dimension_mismatch"
	ErrorTypeEmptyQuery           ErrorType = "empty_query"
	ErrorTypeEncodingFailed       ErrorType = "encoding_failed"
	ErrorTypeSchema               ErrorType = "schema"
	ErrorTypeDatabase             ErrorType = "database"
	ErrorTypeConfig               ErrorType = "config"
	ErrorTypeInternal             ErrorType = "internal"
)

// AppError represents an application error with context
type AppError struct {
	Err       error
	Type      ErrorType
	Message   string
	StackInfo string
	Fields    map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

// Unwrap unwraps the error to support errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithField adds a field to the error for additional context
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// WithFields adds multiple fields to the error for additional context
func (e *AppError) WithFields(fields map[string]interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// captureStack captures the stack trace at the call site
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var builder strings.Builder
	for {
		frame, more := frames.Next()
		// Skip testing and standard library frames
		if !strings.Contains(frame.File, "testing/") && !strings.Contains(frame.File, "/go/src/") {
			fmt.Fprintf(&builder, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return builder.String()
}

// New creates a new AppError with the given type, underlying error, and message.
// A nil err is replaced by an error naming the type.
func New(errType ErrorType, err error, message string) *AppError {
	if err == nil {
		err = errors.New(string(errType))
	}

	return &AppError{
		Err:       err,
		Type:      errType,
		Message:   message,
		StackInfo: captureStack(),
		Fields:    make(map[string]interface{}),
	}
}

// Newf creates an AppError whose underlying error is built from a format string.
func Newf(errType ErrorType, message string, format string, args ...interface{}) *AppError {
	return New(errType, fmt.Errorf(format, args...), message)
}

// InvalidInputError creates an error for malformed vectors, matrices or arguments.
func InvalidInputError(err error, message string) *AppError {
	return New(ErrorTypeInvalidInput, err, message)
}

// InvalidConfigurationError creates an error for non-positive or otherwise unusable tunables.
func InvalidConfigurationError(err error, message string) *AppError {
	return New(ErrorTypeInvalidConfiguration, err, message)
}

// MissingArtifactError creates an error for an embedding matrix, interaction
// set or catalog that was not loaded.
func MissingArtifactError(err error, message string) *AppError {
	return New(ErrorTypeMissingArtifact, err, message)
}

// DimensionMismatchError creates an error for a vector whose width does not
// match the matrix it is compared against.
func DimensionMismatchError(expected, actual int, message string) *AppError {
	return Newf(ErrorTypeDimensionMismatch, message, "expected dimension %d, got %d", expected, actual).
		WithField("expected", expected).
		WithField("actual", actual)
}

// EmptyQueryError creates an error for a blank query or a zero-length encoding.
func EmptyQueryError(err error, message string) *AppError {
	return New(ErrorTypeEmptyQuery, err, message)
}

// EncodingError creates an error propagated from a text encoder.
func EncodingError(err error, message string) *AppError {
	return New(ErrorTypeEncodingFailed, err, message)
}

// SchemaError creates an error for tabular input with missing or unexpected columns.
func SchemaError(err error, message string) *AppError {
	return New(ErrorTypeSchema, err, message)
}

// DatabaseError creates a new database error
func DatabaseError(err error, message string) *AppError {
	return New(ErrorTypeDatabase, err, message)
}

// ConfigError creates a new configuration loading error
func ConfigError(err error, message string) *AppError {
	return New(ErrorTypeConfig, err, message)
}

// InternalError creates a new internal error
func InternalError(err error, message string) *AppError {
	return New(ErrorTypeInternal, err, message)
}

// LogError logs an AppError using the provided slog.Logger or the default slog logger.
// It logs the error message, type, stack trace, and any associated fields.
func LogError(logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		args := []any{
			"type", string(appErr.Type),
			"original_error", appErr.Err.Error(),
		}
		if appErr.StackInfo != "" {
			args = append(args, "stack", appErr.StackInfo)
		}
		for k, v := range appErr.Fields {
			args = append(args, k, v)
		}
		logger.Error(appErr.Message, args...)
	} else {
		logger.Error(err.Error(), "error", err)
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or the
// empty string when there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType checks if an error carries the given ErrorType
func IsType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// IsInvalidInput checks if an error is an invalid input error
func IsInvalidInput(err error) bool {
	return IsType(err, ErrorTypeInvalidInput)
}

// IsInvalidConfiguration checks if an error is an invalid configuration error
func IsInvalidConfiguration(err error) bool {
	return IsType(err, ErrorTypeInvalidConfiguration)
}

// IsMissingArtifact checks if an error is a missing artifact error
func IsMissingArtifact(err error) bool {
	return IsType(err, ErrorTypeMissingArtifact)
}

// IsDimensionMismatch checks if an error is a dimension mismatch error
func IsDimensionMismatch(err error) bool {
	return IsType(err, ErrorTypeDimensionMismatch)
}

// IsEmptyQuery checks if an error is an empty query error
func IsEmptyQuery(err error) bool {
	return IsType(err, ErrorTypeEmptyQuery)
}

// IsEncodingFailed checks if an error came from the text encoder
func IsEncodingFailed(err error) bool {
	return IsType(err, ErrorTypeEncodingFailed)
}

// IsSchemaError checks if an error is a schema error
func IsSchemaError(err error) bool {
	return IsType(err, ErrorTypeSchema)
}

// IsDatabaseError checks if an error is a database error
func IsDatabaseError(err error) bool {
	return IsType(err, ErrorTypeDatabase)
}
