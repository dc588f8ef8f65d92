package config

import (
	"errors"
	"fmt"
)

// ErrMissingRequiredField indicates a required field is missing from the
// loaded configuration.
var ErrMissingRequiredField = errors.New("missing required field")

// LoadError wraps configuration loading failures with file context, the way
// the teacher's config.LoadError does.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError constructs a LoadError.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
