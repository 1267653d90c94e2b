package assessment

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by stores when a referenced entity is missing and
// propagated to callers unchanged.
var ErrNotFound = errors.New("not found")

// AuthorizationError means the caller does not hold the role an operation
// requires on this assessment.
type AuthorizationError struct {
	Caller   string
	Required string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("caller %s is not the %s of this assessment", e.Caller, e.Required)
}

// PreconditionError means an operation was attempted before the stage it
// depends on completed.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return "precondition: " + e.Reason }
