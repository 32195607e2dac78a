package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retriable request error",
			err:      &RequestError{ErrorClass: ErrorClassServer, StatusCode: 503, Retriable: true},
			expected: true,
		},
		{
			name:     "wrapped retriable request error",
			err:      fmt.Errorf("get page: %w", &RequestError{ErrorClass: ErrorClassNetwork, Retriable: true}),
			expected: true,
		},
		{
			name:     "not found is never retried",
			err:      &RequestError{ErrorClass: ErrorClassNotFound, StatusCode: 404},
			expected: false,
		},
		{
			name:     "non-retriable server status",
			err:      &RequestError{ErrorClass: ErrorClassServer, StatusCode: 501},
			expected: false,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			expected: false,
		},
		{
			name:     "context cancelled",
			err:      fmt.Errorf("%w: deadline", ErrContextCancelled),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := shouldRetry(tt.err); result != tt.expected {
				t.Errorf("shouldRetry(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{404, ErrorClassNotFound},
		{403, ErrorClassClient},
		{410, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
		{504, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.expected {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestRequestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *RequestError
		expected string
	}{
		{
			name:     "status without cause",
			err:      &RequestError{URL: "http://x/BP1", StatusCode: 503, ErrorClass: ErrorClassServer},
			expected: "GET http://x/BP1: server error (status 503)",
		},
		{
			name:     "status with cause",
			err:      &RequestError{URL: "http://x/BP2", StatusCode: 404, ErrorClass: ErrorClassNotFound, Err: ErrNotFound},
			expected: "GET http://x/BP2: not_found error (status 404): not found",
		},
		{
			name:     "network error",
			err:      &RequestError{URL: "http://x/BP3", ErrorClass: ErrorClassNetwork, Err: errors.New("connection refused")},
			expected: "GET http://x/BP3: network error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRequestError_Unwrap(t *testing.T) {
	err := fmt.Errorf("fetch: %w", &RequestError{StatusCode: 404, ErrorClass: ErrorClassNotFound, Err: ErrNotFound})

	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is should find ErrNotFound through RequestError")
	}
	if ClassOf(err) != ErrorClassNotFound {
		t.Errorf("ClassOf() = %q, want %q", ClassOf(err), ErrorClassNotFound)
	}
	if ClassOf(errors.New("plain")) != "" {
		t.Error("ClassOf() of a plain error should be empty")
	}
}
