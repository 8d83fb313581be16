package core

import "errors"

// Error codes for domain errors reported to clients.
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeStoreFailure = "store_failure"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeRateLimited  = "rate_limited"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrStoreFailure = errors.New("store failure")
	ErrBadRequest   = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// NewError builds a client-facing error payload.
func NewError(code, msg string) *CoreError {
	return coreError(code, msg)
}
