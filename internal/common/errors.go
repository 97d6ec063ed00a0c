package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the extraction pipeline taxonomy. Stored in AppError.Code and
// mapped onto HTTP statuses at the server boundary.
const (
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeExtractionFailure = "EXTRACTION_FAILURE"
	CodeCompletionFailure = "COMPLETION_FAILURE"
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInternal          = "INTERNAL"
	CodeConfig            = "CONFIG_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// UnsupportedFormatError reports a media type the pipeline does not accept.
// Terminal, never retried.
func UnsupportedFormatError(ext string) *AppError {
	return NewAppError(CodeUnsupportedFormat, fmt.Sprintf("unsupported file format: %q", ext), ErrInvalidInput)
}

func ExtractionError(message string, cause error) *AppError {
	return NewAppError(CodeExtractionFailure, message, cause)
}

func CompletionError(message string, cause error) *AppError {
	return NewAppError(CodeCompletionFailure, message, cause)
}

func NotFoundError(resource string) *AppError {
	return NewAppError(CodeNotFound, resource+" not found", ErrNotFound)
}

func ForbiddenError(message string) *AppError {
	return NewAppError(CodeForbidden, message, ErrForbidden)
}

func InvalidInputError(message string) *AppError {
	return NewAppError(CodeInvalidInput, message, ErrInvalidInput)
}

func InvalidInputErrorf(format string, args ...any) *AppError {
	return InvalidInputError(fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error to the status the HTTP surface should respond with.
func HTTPStatus(err error) int {
	var app *AppError
	if errors.As(err, &app) {
		switch app.Code {
		case CodeUnsupportedFormat, CodeInvalidInput:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeForbidden:
			return http.StatusForbidden
		case CodeExtractionFailure, CodeCompletionFailure, CodeInternal, CodeConfig:
			return http.StatusInternalServerError
		}
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
