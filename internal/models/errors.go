package models

import "fmt"

// InvalidTransitionError is returned when a lifecycle transition is requested
// from a source state that does not permit it. The persisted state is left
// unchanged whenever this error is returned.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
}

func newInvalidTransition(entity, from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{Entity: entity, From: from, To: to}
}
