package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType - error category carried to clients as errorCode
type ErrorType string

const (
	TypeInvalidInput      ErrorType = "INVALID_INPUT"
	TypeDecode            ErrorType = "DECODE_ERROR"
	TypeEncode            ErrorType = "ENCODE_ERROR"
	TypeIO                ErrorType = "IO_ERROR"
	TypeMalformedResponse ErrorType = "MALFORMED_RESPONSE"
	TypeRemote            ErrorType = "REMOTE_ERROR"
	TypeNotFound          ErrorType = "NOT_FOUND"
	TypeInternal          ErrorType = "INTERNAL_ERROR"
)

// AppError - structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`

	// Image marks invalid input that is about the uploaded image itself
	Image bool `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{Type: t, Message: message, StatusCode: status, Cause: cause}
}

// NewInvalidInputError - malformed request
func NewInvalidInputError(message string, cause error) *AppError {
	return newError(TypeInvalidInput, http.StatusBadRequest, message, cause)
}

// NewInvalidImageError - unsupported, empty or oversized image upload
func NewInvalidImageError(message string, cause error) *AppError {
	e := newError(TypeInvalidInput, http.StatusBadRequest, message, cause)
	e.Image = true
	return e
}

// NewDecodeError - declared image could not be decoded
func NewDecodeError(message string, cause error) *AppError {
	return newError(TypeDecode, http.StatusUnprocessableEntity, message, cause)
}

// NewEncodeError - target format or quality not supported
func NewEncodeError(message string, cause error) *AppError {
	return newError(TypeEncode, http.StatusUnprocessableEntity, message, cause)
}

// NewIOError - reading the upload failed
func NewIOError(message string, cause error) *AppError {
	return newError(TypeIO, http.StatusBadRequest, message, cause)
}

// NewMalformedResponseError - remote returned a payload that is not the agreed JSON
func NewMalformedResponseError(message string, cause error) *AppError {
	return newError(TypeMalformedResponse, http.StatusBadGateway, message, cause)
}

// NewNotFoundError - unknown job, share token or history entry
func NewNotFoundError(message string, cause error) *AppError {
	return newError(TypeNotFound, http.StatusNotFound, message, cause)
}

// NewInternalError - anything else
func NewInternalError(message string, cause error) *AppError {
	return newError(TypeInternal, http.StatusInternalServerError, message, cause)
}

// IsType checks if err (or anything it wraps) is an AppError of type t
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode()
	}
	return http.StatusInternalServerError
}

// Code returns the errorCode string for err
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return string(appErr.Type)
	}
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return string(TypeRemote)
	}
	return string(TypeInternal)
}
