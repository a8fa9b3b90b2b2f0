package face

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFaceDetected is a normal outcome; the caller re-prompts.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrInsufficientFrames means fewer burst frames than required and no still image.
	ErrInsufficientFrames = errors.New("insufficient frames")
	// ErrModelUnavailable means an external model failed to load or run.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrDimensionMismatch means a vector does not have the family's length.
	ErrDimensionMismatch = errors.New("descriptor dimension mismatch")
	// ErrFamilyMismatch means descriptors of different families were mixed.
	ErrFamilyMismatch = errors.New("descriptor family mismatch")
	// ErrNoEnrolledDescriptors is terminal until the identity is enrolled.
	ErrNoEnrolledDescriptors = errors.New("no enrolled descriptors")
)

// ModelError wraps a failure of a named external model.
type ModelError struct {
	Model string
	Err   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s model: %v", e.Model, e.Err)
}

// Unwrap exposes both the cause and ErrModelUnavailable to errors.Is.
func (e *ModelError) Unwrap() []error {
	return []error{ErrModelUnavailable, e.Err}
}

// NewModelError wraps err as a model failure.
func NewModelError(model string, err error) error {
	return &ModelError{Model: model, Err: err}
}
