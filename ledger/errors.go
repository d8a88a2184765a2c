package ledger

import (
	"errors"
	"fmt"

	"noircafe-backend/models"
)

// Domain-level error values returned by the ledger service.
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidAmount          = errors.New("amount must be a positive integer")
	ErrInvalidTransactionType = errors.New("transaction type not allowed for this operation")
	ErrInvalidPackage         = errors.New("package must be between 10 and 1000 points")
	ErrInvalidPrice           = errors.New("package price must be at least 1")
	ErrInvalidTransition      = models.ErrInvalidTransition
	ErrRetryLimitReached      = models.ErrRetryLimitReached
	ErrNotFlagged             = models.ErrNotFlagged
)

// InsufficientPointsError reports a debit larger than the spendable balance.
type InsufficientPointsError struct {
	Required  int
	Available int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: required %d, available %d", e.Required, e.Available)
}

// Shortage is how many more points the user would need.
func (e *InsufficientPointsError) Shortage() int {
	return e.Required - e.Available
}

// OperationError tags a failure with the ledger operation that produced it.
type OperationError struct {
	Operation string
	UserUID   string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("ledger.%s(%s): %v", e.Operation, e.UserUID, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func wrapError(operation, uid string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, UserUID: uid, Err: err}
}
