// Package perferrors contains the generic errors returned by the extraction and insertion layers.
//
// Callers should recover these with errors.As: validation failures surface as ErrInvalidArgument,
// output-shape contract failures as ErrShapeViolation, and failed uploads as ErrPartialWrite. If
// multiple errors occur in one operation, a multierror.Error from github.com/hashicorp/go-multierror
// encapsulates the individual errors.
package perferrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "aggregationWindow"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	} else {
		return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
	}
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "integration" or "secret"
	Value   string // Resource name, e.g., "main"
	Message string // An optional message to include in the error message
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrShapeViolation is returned when an engine produces output that does not satisfy the
// contract of the operation that produced it.
type ErrShapeViolation struct {
	Operation string
	Message   string
}

func (err *ErrShapeViolation) Error() string {
	return fmt.Sprintf("%s returned malformed output: %s", err.Operation, err.Message)
}

// ErrPartialWrite is returned when an upload failed after some of its batches were submitted.
// Rollback reports whether a compensating delete covering the upload was performed successfully.
type ErrPartialWrite struct {
	PointsWritten int
	Rollback      bool
	Cause         error
}

func (err *ErrPartialWrite) Error() string {
	state := "data may be partially applied"
	if err.Rollback {
		state = "written points were rolled back"
	}
	return fmt.Sprintf("upload failed after %d points were written (%s): %v", err.PointsWritten, state, err.Cause)
}

func (err *ErrPartialWrite) Unwrap() error {
	return err.Cause
}

// IsInvalidArgument reports whether any error in err's chain is an ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	var e *ErrInvalidArgument
	return errors.As(err, &e)
}

// IsNotFound reports whether any error in err's chain is an ErrNotFound.
func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}
