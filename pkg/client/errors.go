package client

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrNotFound is wrapped by the error returned for a 404 response.
	ErrNotFound = errors.New("not found")

	// ErrBodyTooLarge is returned when a response body exceeds Config.MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents non-retriable 4xx errors other than 404.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassNotFound represents 404 responses. Never retried.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassServer represents 5xx errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents DNS, connection and timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// RequestError describes a failed attempt against the origin.
type RequestError struct {
	URL        string
	StatusCode int
	ErrorClass ErrorClass

	// Retriable is true when the retry policy allows another attempt.
	Retriable bool

	// RetryAfter is the server-requested delay, if any.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("GET %s: %s error: %v", e.URL, e.ErrorClass, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("GET %s: %s error (status %d): %v", e.URL, e.ErrorClass, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("GET %s: %s error (status %d)", e.URL, e.ErrorClass, e.StatusCode)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// ClassOf returns the error class carried by err, or "" if err is not a RequestError.
func ClassOf(err error) ErrorClass {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ErrorClass
	}
	return ""
}

// shouldRetry determines if an error should be retried.
func shouldRetry(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.Retriable
}

// classifyStatus maps a non-2xx status to its error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 404:
		return ErrorClassNotFound
	case status == 429:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}
