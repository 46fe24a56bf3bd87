package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeRequestFailed marks transport failures: a connection that
	// could not be established or a non-success HTTP status.
	ErrorTypeRequestFailed ErrorType = "request_failed"

	// ErrorTypeEmptyResponse marks a well-formed response without choices.
	ErrorTypeEmptyResponse ErrorType = "empty_response"

	// ErrorTypeInvalidRequest marks a request rejected before it was sent.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
)

// ErrEmptyResponse is matched by errors.Is for every empty_response error.
var ErrEmptyResponse = errors.New("no choices in response")

// APIError is the error returned by completion calls. It aborts the current
// turn and is never retried.
type APIError struct {
	Type ErrorType

	// StatusCode is the HTTP status of a request_failed error. Zero means
	// no response was received.
	StatusCode int

	// Body is the raw response body, when one was read.
	Body string

	Param   string
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch {
	case e.Param != "":
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Type, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Err
}

// NewRequestFailedError creates a request_failed error. statusCode is zero
// for connection errors, in which case cause should be set.
func NewRequestFailedError(statusCode int, body, message string, cause error) *APIError {
	if message == "" {
		switch {
		case body != "":
			message = body
		case cause != nil:
			message = cause.Error()
		default:
			message = "request failed"
		}
	}
	return &APIError{
		Type:       ErrorTypeRequestFailed,
		StatusCode: statusCode,
		Body:       body,
		Message:    message,
		Err:        cause,
	}
}

// NewEmptyResponseError creates an empty_response error.
func NewEmptyResponseError() *APIError {
	return &APIError{
		Type:    ErrorTypeEmptyResponse,
		Message: ErrEmptyResponse.Error(),
		Err:     ErrEmptyResponse,
	}
}

// NewInvalidRequestError creates an invalid_request error for the given parameter.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// IsRequestFailed reports whether err is, or wraps, a request_failed error.
func IsRequestFailed(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == ErrorTypeRequestFailed
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
