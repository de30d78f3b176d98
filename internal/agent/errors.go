package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrModelClient matches every failure to obtain a model response.
	ErrModelClient = errors.New("model client failure")
	// ErrLoopBoundExceeded is returned when the model keeps requesting
	// tools past the iteration limit.
	ErrLoopBoundExceeded = errors.New("loop bound exceeded")
)

// ModelClientError describes a failed provider call.
type ModelClientError struct {
	Provider  string
	Iteration int
	Err       error
}

func (e *ModelClientError) Error() string {
	return fmt.Sprintf("agent: model client %s (iteration %d): %v", e.Provider, e.Iteration, e.Err)
}

func (e *ModelClientError) Unwrap() error { return e.Err }

// Is reports ErrModelClient as a match.
func (e *ModelClientError) Is(target error) bool { return target == ErrModelClient }
