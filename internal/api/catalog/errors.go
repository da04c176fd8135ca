package catalog

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a catalog API failure
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindTransport    ErrorKind = "transport"
	KindTimeout      ErrorKind = "timeout"
	KindRateLimited  ErrorKind = "rate_limited"
	KindHTTPStatus   ErrorKind = "http_status"
	KindValidation   ErrorKind = "validation"
	KindAuthFile     ErrorKind = "auth_file"
)

// APIError is the structured error returned by the catalog client
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("catalog API %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("catalog API %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("catalog API %s (status %d)", e.Kind, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is an authentication or authorization
// failure, including credential file problems. Fatal, never retried.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case KindUnauthorized, KindForbidden, KindAuthFile:
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a not-found miss
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindNotFound
}

// IsRateLimited reports whether err is a 429 rejection
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case KindTransport, KindTimeout, KindRateLimited:
		return true
	case KindHTTPStatus:
		return apiErr.StatusCode >= 500
	default:
		return false
	}
}

func classifyStatus(status int, message string) *APIError {
	switch status {
	case 401:
		return &APIError{Kind: KindUnauthorized, StatusCode: status, Message: message}
	case 403:
		return &APIError{Kind: KindForbidden, StatusCode: status, Message: message}
	case 404:
		return &APIError{Kind: KindNotFound, StatusCode: status, Message: message}
	case 429:
		return &APIError{Kind: KindRateLimited, StatusCode: status, Message: message}
	default:
		return &APIError{Kind: KindHTTPStatus, StatusCode: status, Message: message}
	}
}
