package problem

import (
	"errors"
	"fmt"
)

// Kind classifies why a problem was skipped.
type Kind string

const (
	// KindNotFound means the origin answered 404: the ID has no content.
	KindNotFound Kind = "not_found"

	// KindRetriable means transient failures persisted until retries were exhausted.
	KindRetriable Kind = "retriable"

	// KindNetwork means the request never produced an HTTP response.
	KindNetwork Kind = "network"

	// KindValidation means the page does not have the fixed twelve-image shape.
	KindValidation Kind = "validation"

	// KindHTTPStatus means a non-retriable, non-404 error status.
	KindHTTPStatus Kind = "http_status"

	// KindPartialAssets marks a completed problem with one or more failed images.
	// It is never a skip reason.
	KindPartialAssets Kind = "partial_assets"

	// KindInternal covers local failures such as an unwritable problem directory.
	KindInternal Kind = "internal"
)

// ErrValidation is wrapped by failures of kind KindValidation.
var ErrValidation = errors.New("page validation failed")

// Failure is the typed outcome of a problem that produced no index row.
type Failure struct {
	ID   ID
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s %s: %v", f.ID.Name(), f.Kind, f.Err)
	}
	return fmt.Sprintf("%s %s", f.ID.Name(), f.Kind)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure builds a Failure.
func NewFailure(id ID, kind Kind, err error) *Failure {
	return &Failure{ID: id, Kind: kind, Err: err}
}

// KindOf returns the failure kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}
