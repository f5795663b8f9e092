package command

import (
	"errors"
	"fmt"
)

// ErrInvalidState marks a programming-contract violation: an operation was
// attempted against an entity whose current state does not permit it.
var ErrInvalidState = errors.New("invalid state")

// ValidationError reports a malformed field at construction time.
// The caller never receives a partially-valid entity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
