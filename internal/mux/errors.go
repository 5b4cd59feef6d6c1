package mux

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrConnection      = errors.New("mux: connection error")
	ErrUnknownRequest  = errors.New("mux: unknown request")
	ErrAlreadyResolved = errors.New("mux: request already resolved")
	ErrCycleInFlight   = errors.New("mux: dispatch cycle already running")
	ErrAddressRequired = errors.New("mux: address required")
	ErrRequestSkipped  = errors.New("mux: request skipped")
)

// SkippedError lists requests a cycle left pending because their payload
// could not be encoded. Every other request in the cycle was exchanged
// normally; the cycle itself did not fail.
type SkippedError struct {
	IDs  []uuid.UUID
	Errs []error
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("%v: %d request(s): %v", ErrRequestSkipped, len(e.IDs), errors.Join(e.Errs...))
}

func (e *SkippedError) Unwrap() []error {
	return append([]error{ErrRequestSkipped}, e.Errs...)
}

// Partial reports that the cycle completed with some requests left behind.
func (e *SkippedError) Partial() bool {
	return true
}

func skippedErr(ids []uuid.UUID, errs []error) error {
	if len(ids) == 0 {
		return nil
	}
	return &SkippedError{IDs: ids, Errs: errs}
}
