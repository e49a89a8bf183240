package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrReturnWindowClosed = errors.New("return window closed")
	ErrOverReturn         = errors.New("quantity exceeds returnable amount")
	ErrInsufficientCredit = errors.New("insufficient store credit")
	ErrCustomerRequired   = errors.New("customer required for store credit")
	ErrCreditOwner        = errors.New("receipt belongs to another customer")
)

// ValidationError reports a rejected input field at the service boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func Invalid(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnPending:  {ReturnApproved, ReturnRejected, ReturnCancelled},
	ReturnApproved: {ReturnCompleted, ReturnCancelled},
}

// CanTransition reports whether a return may move from one status to another.
// Completed, rejected and cancelled returns are terminal.
func CanTransition(from ReturnStatus, to ReturnStatus) bool {
	for _, next := range returnTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s ReturnStatus) Terminal() bool {
	return len(returnTransitions[s]) == 0
}

// TransitionError builds the error returned when a return cannot move to a status.
func TransitionError(from ReturnStatus, to ReturnStatus) error {
	return fmt.Errorf("%w: return is %s, cannot move to %s", ErrInvalidTransition, from, to)
}
