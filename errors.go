package leanvec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/leanvec/embedding"
)

var (
	// ErrEmptyCorpus is returned when a build receives no chunks.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrIndexExists is returned when building into a directory that
	// already holds an index. Indexes are immutable; build into a new
	// directory instead.
	ErrIndexExists = errors.New("index already exists")

	// ErrNotFound is returned when a chunk id is not in the index.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when operating on a closed index.
	ErrClosed = errors.New("index is closed")

	// ErrProviderUnavailable wraps embedding provider failures during
	// search.
	ErrProviderUnavailable = embedding.ErrUnavailable
)

// DimensionMismatchError indicates a vector/index dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	cause    error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

// ProviderMismatchError indicates that the embedding provider given at
// open time differs from the one the index was built with.
type ProviderMismatchError struct {
	IndexModel    string
	ProviderModel string
}

func (e *ProviderMismatchError) Error() string {
	return fmt.Sprintf("embedding provider mismatch: index built with %q, provider is %q", e.IndexModel, e.ProviderModel)
}

// BuildError wraps a failure during index construction with the stage
// it happened in.
//
// The original underlying error can be accessed via errors.Unwrap.
type BuildError struct {
	Stage string
	cause error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %v", e.Stage, e.cause)
}

func (e *BuildError) Unwrap() error { return e.cause }

func buildErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &BuildError{Stage: stage, cause: err}
}

// IntegrityError indicates that a persisted index failed validation at
// open time.
//
// The original underlying error can be accessed via errors.Unwrap.
type IntegrityError struct {
	Dir   string
	cause error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("index %s failed integrity check: %v", e.Dir, e.cause)
}

func (e *IntegrityError) Unwrap() error { return e.cause }
