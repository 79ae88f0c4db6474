// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/manager-data-agent/backend/internal/conversation"
	"github.com/manager-data-agent/backend/internal/logging"
	"github.com/manager-data-agent/backend/internal/storage"
	"github.com/sirupsen/logrus"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-" msgpack:"-"`
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func withCause(err *APIError, cause error) *APIError {
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	return withCause(&APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}, cause)
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewForbiddenError creates a 403 Forbidden error
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// NewDataUnavailableError creates a 422 error for datasets that cannot be read
func NewDataUnavailableError(message string, cause error) *APIError {
	return withCause(&APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "DATA_UNAVAILABLE",
		Message: message,
	}, cause)
}

// NewAnalysisFailedError creates a 502 error for a failed analysis capability call
func NewAnalysisFailedError(message string, cause error) *APIError {
	return withCause(&APIError{
		Status:  http.StatusBadGateway,
		Code:    "ANALYSIS_FAILED",
		Message: message,
	}, cause)
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	return withCause(&APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}, cause)
}

// FromError maps any handler error onto an APIError.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	}

	if errors.Is(err, storage.ErrNotFound) {
		return withCause(&APIError{
			Status:  http.StatusNotFound,
			Code:    "NOT_FOUND",
			Message: "file not found",
		}, err)
	}

	var convErr *conversation.Error
	if errors.As(err, &convErr) {
		switch convErr.Kind {
		case conversation.KindBadRequest:
			return NewBadRequestError("invalid analysis request", convErr.Err)
		case conversation.KindDataUnavailable:
			return NewDataUnavailableError("dataset could not be read", convErr.Err)
		case conversation.KindAnalysisFailed:
			return NewAnalysisFailedError("analysis failed", convErr.Err)
		}
		return NewInternalError("analysis request failed", convErr.Err)
	}

	return NewInternalError("an unexpected error occurred", err)
}

// ErrorHandler is the echo HTTPErrorHandler.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	apiErr := FromError(err)

	entry := logging.For("api").WithFields(logrus.Fields{
		"method": c.Request().Method,
		"path":   c.Path(),
		"status": apiErr.Status,
		"code":   apiErr.Code,
	})
	if apiErr.Status >= http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
	} else {
		entry.WithError(err).Debug("request rejected")
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	respond(c, apiErr.Status, apiErr)
}
