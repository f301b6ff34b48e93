package cache

import (
	"errors"
	"fmt"
)

// MissingFieldError is returned by Write when the response payload lacks a
// field that the selection requires directly (outside any fragment). The
// write is not applied.
type MissingFieldError struct {
	ID    EntityID
	Field string
	Path  Path
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("write: data is missing required field %q at %s", e.Field, e.Path)
}

// PartialReadError is returned by Read and Diff when the store lacks a record
// or a field the selection requires. Field is empty when the whole record is
// absent. Callers can treat it as "not cached" rather than a programming
// error.
type PartialReadError struct {
	ID    EntityID
	Field string
	Path  Path
}

func (e *PartialReadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("read: no record for entity %q at %s", e.ID, e.Path)
	}
	return fmt.Sprintf("read: record %q is missing field %q at %s", e.ID, e.Field, e.Path)
}

// UnknownFragmentError is returned when a fragment spread names a fragment
// that is not in the document's fragment list. Never swallowed.
type UnknownFragmentError struct {
	Name string
}

func (e *UnknownFragmentError) Error() string {
	return fmt.Sprintf("unknown fragment %q", e.Name)
}

// MissingVariableError is returned when a selection references a variable
// that is absent from the provided bindings.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("variable $%s was not provided", e.Name)
}

// Overlay stacking errors. Overlays must be committed or rolled back in
// reverse creation order; anything else is a caller error.
var (
	ErrOverlayOrder  = errors.New("overlay is not on top of the stack")
	ErrOverlayClosed = errors.New("overlay already committed or rolled back")
)
