package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for lifecycle and lookup failures. Callers match
// with errors.Is.
var (
	// ErrExamNotFound is returned when the referenced exam does not exist.
	ErrExamNotFound = errors.New("exam not found")
	// ErrQuestionNotFound is returned when the referenced question does not exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrExamLocked is returned when a mutation targets an approved exam.
	ErrExamLocked = errors.New("exam is approved and locked")
	// ErrAlreadyApproved is returned on a second approval attempt.
	ErrAlreadyApproved = errors.New("exam already approved")
	// ErrNotOwner is returned when a teacher operates on someone else's exam.
	ErrNotOwner = errors.New("exam belongs to another teacher")
	// ErrLastAdmin is returned when deactivating the only active admin.
	ErrLastAdmin = errors.New("cannot deactivate the last active admin")
)

// ValidationError reports a structural violation of a question or exam
// field. Field names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
