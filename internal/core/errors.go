package core

import (
	"errors"
	"fmt"
)

// ValidationError marks bad caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError marks a missing session or item on a point lookup.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// UnavailableError marks a transient external-dependency failure.
// Safe to retry; surfaced only after internal retries are exhausted.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// CollectionMissingError marks a vector collection that does not exist.
// Permanent until the collection is created; not retried.
type CollectionMissingError struct {
	Collection string
}

func (e *CollectionMissingError) Error() string {
	return fmt.Sprintf("collection %q does not exist", e.Collection)
}

// EmbeddingError marks input the embedding provider rejected. Not retried.
type EmbeddingError struct {
	Reason string
}

func (e *EmbeddingError) Error() string {
	return "embedding failed: " + e.Reason
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsUnavailable(err error) bool {
	var e *UnavailableError
	return errors.As(err, &e)
}

func IsCollectionMissing(err error) bool {
	var e *CollectionMissingError
	return errors.As(err, &e)
}

func IsEmbedding(err error) bool {
	var e *EmbeddingError
	return errors.As(err, &e)
}
