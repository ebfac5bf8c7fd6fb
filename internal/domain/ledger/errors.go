package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrTransientConflict = errors.New("ticket stock is busy, retry later")
	ErrStorageFailure    = errors.New("storage failure")
)

// IsRetryable reports whether err is a transient conflict that a caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientConflict)
}

// classify makes sure every store error belongs to the ledger error taxonomy.
// Errors that are not already one of the sentinels become storage failures.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrInvalidQuantity,
		ErrTicketNotFound,
		ErrInsufficientStock,
		ErrTransientConflict,
		ErrStorageFailure,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrStorageFailure, err)
}
