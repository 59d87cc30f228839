// Package apperr defines the error taxonomy shared across Munin layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// Validation failure reasons.
const (
	ReasonMissingContent      = "missing content"
	ReasonMissingMetadata     = "missing metadata"
	ReasonEmptyDocument       = "content or metadata required"
	ReasonCollectionImmutable = "collection is immutable"
	ReasonMissingQueryText    = "query_text is required"
	ReasonLimitOutOfRange     = "limit out of range"
)

// ValidationError is a client-caused input failure, mapped to HTTP 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Validation returns a new ValidationError with the given reason.
func Validation(reason string) error {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// WriteError is a metadata-store failure. The triggering operation is
// fatal: nothing was committed to either store.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("metadata write: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IndexSyncError is a vector-index failure after the metadata store has
// committed. It is never fatal to the caller: the document is flagged
// pending and repaired in the background.
type IndexSyncError struct {
	Err error
}

func (e *IndexSyncError) Error() string {
	return fmt.Sprintf("index sync: %v", e.Err)
}

func (e *IndexSyncError) Unwrap() error { return e.Err }
