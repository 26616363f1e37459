package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound         = errors.New("document not found")
	ErrInvalidInput             = errors.New("invalid input")
	ErrDimensionMismatch        = errors.New("embedding dimension mismatch")
	ErrDownstreamUnavailable    = errors.New("downstream service unavailable")
	ErrMalformedGeneratorOutput = errors.New("malformed generator output")
	ErrIndexPersistence         = errors.New("index persistence failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
