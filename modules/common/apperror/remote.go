package apperror

import (
	"fmt"
	"net/http"
)

// Class - retry classification of a remote failure
type Class int

const (
	Permanent Class = iota
	Transient
	RateLimited
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case RateLimited:
		return "rate-limited"
	default:
		return "permanent"
	}
}

// RemoteError - a classified failure observed at the Gemini boundary
type RemoteError struct {
	Class Class
	Code  int // HTTP status reported by the remote, 0 when unknown
	Err   error
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("remote %s error (status %d): %v", e.Class, e.Code, e.Err)
	}
	return fmt.Sprintf("remote %s error: %v", e.Class, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// StatusCode - status returned to our own clients for this failure
func (e *RemoteError) StatusCode() int {
	switch e.Class {
	case RateLimited:
		return http.StatusTooManyRequests
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
