// Package errors defines the sentinel error kinds shared by the scoring
// engine, the stream codec, and the validation pipeline. Callers classify
// failures with errors.Is rather than string matching.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks invalid configuration detected before any work begins:
	// bad fold counts, pseudocount shape mismatches, zero result limits.
	ErrConfig = errors.New("invalid configuration")

	// ErrCorruptStream marks a malformed feature stream record beyond the
	// tolerated truncated-tail case, which is silent end-of-stream.
	ErrCorruptStream = errors.New("corrupt feature stream")

	// ErrUnknownFeature marks a feature vector referencing an ID outside the
	// catalog. This indicates an ingestion bug, not bad user input.
	ErrUnknownFeature = errors.New("unknown feature id")

	// ErrNumericDegenerate marks non-finite feature scores produced by
	// zero probabilities without a smoothing floor.
	ErrNumericDegenerate = errors.New("non-finite score")

	// ErrPartialResult tags results accumulated before a scan or validation
	// run was aborted. The cause is attached via wrapping.
	ErrPartialResult = errors.New("partial result")

	// ErrDocumentExists is returned when registering a document ID already
	// present in the feature store.
	ErrDocumentExists = errors.New("document already exists")

	// ErrDocumentNotFound is returned when a document ID has no stored
	// feature vector.
	ErrDocumentNotFound = errors.New("document not found")
)

// Configf wraps ErrConfig with a formatted description.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Corruptf wraps ErrCorruptStream with a formatted description.
func Corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptStream, fmt.Sprintf(format, args...))
}

// Partial tags err as a partial-result condition, keeping the original cause
// visible to errors.Is.
func Partial(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPartialResult, err)
}
